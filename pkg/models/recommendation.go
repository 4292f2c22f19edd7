package models

// Recommendation holds the recommended resources for one container
type Recommendation struct {
	Container string       `json:"container"`
	Requests  ResourceList `json:"requests"`
	Limits    ResourceList `json:"limits,omitempty"`

	// Samples is the number of usage samples the recommendation is based on
	Samples int `json:"samples,omitempty"`
}

// GapThreshold holds the per-resource percentages above which a gap is reported
type GapThreshold struct {
	CPUPercent    float64 `json:"cpu_threshold"`
	MemoryPercent float64 `json:"memory_threshold"`
}

const DefaultGapPercent = 30.0

// DefaultGapThreshold returns 30% for both resources
func DefaultGapThreshold() GapThreshold {
	return GapThreshold{
		CPUPercent:    DefaultGapPercent,
		MemoryPercent: DefaultGapPercent,
	}
}

// For returns the threshold for the given resource kind
func (t GapThreshold) For(kind ResourceKind) float64 {
	if kind == ResourceMemory {
		return t.MemoryPercent
	}
	return t.CPUPercent
}
