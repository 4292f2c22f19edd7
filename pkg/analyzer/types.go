package analyzer

// UsagePattern describes usage behavior
type UsagePattern struct {
	Type       string  // "steady", "moderate", "spiky", "highly-variable"
	Variation  float64 // Coefficient of variation
	Confidence float64
}
