package analyzer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/opscart/k8s-gap-auditor/pkg/models"
)

var ErrNoSamples = errors.New("no samples provided")

// Percentile returns the p-th percentile (0 < p <= 100) of the sample values
func Percentile(samples []models.Sample, p float64) (float64, error) {
	if p <= 0 || p > 100 || math.IsNaN(p) {
		return 0, fmt.Errorf("percentile must be in (0, 100], got %v", p)
	}
	values, err := sortedValues(samples)
	if err != nil {
		return 0, err
	}
	return calculatePercentile(values, p), nil
}

// Peak returns the largest sample value
func Peak(samples []models.Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, ErrNoSamples
	}
	peak := samples[0].Value
	for _, s := range samples[1:] {
		if s.Value > peak {
			peak = s.Value
		}
	}
	return peak, nil
}

// sortedValues drops NaN samples, which Prometheus emits for stale series
func sortedValues(samples []models.Sample) ([]float64, error) {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if !math.IsNaN(s.Value) {
			values = append(values, s.Value)
		}
	}
	if len(values) == 0 {
		return nil, ErrNoSamples
	}
	sort.Float64s(values)
	return values, nil
}

// calculatePercentile computes the Nth percentile using linear interpolation
func calculatePercentile(sortedValues []float64, percentile float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if len(sortedValues) == 1 {
		return sortedValues[0]
	}

	n := float64(len(sortedValues))
	rank := (percentile / 100.0) * (n - 1)

	lowerIndex := int(math.Floor(rank))
	upperIndex := int(math.Ceil(rank))
	if lowerIndex == upperIndex {
		return sortedValues[lowerIndex]
	}

	lowerValue := sortedValues[lowerIndex]
	upperValue := sortedValues[upperIndex]
	fraction := rank - float64(lowerIndex)

	return lowerValue + (upperValue-lowerValue)*fraction
}

func calculateAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// CalculateCoefficientOfVariation measures the relative variability.
// High CV (>0.5) = spiky workload, low CV (<0.2) = steady workload.
func CalculateCoefficientOfVariation(samples []models.Sample) float64 {
	if len(samples) < 2 {
		return 0
	}

	values := make([]float64, len(samples))
	for i, sample := range samples {
		values[i] = sample.Value
	}

	mean := calculateAverage(values)
	if mean == 0 {
		return 0
	}

	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	stdDev := math.Sqrt(sumSquaredDiff / float64(len(values)))

	return stdDev / mean
}

// AnalyzeUsagePattern classifies a series as steady, moderate, spiky or highly variable
func AnalyzeUsagePattern(samples []models.Sample) UsagePattern {
	if len(samples) < 10 {
		return UsagePattern{Type: "unknown"}
	}

	cv := CalculateCoefficientOfVariation(samples)

	var patternType string
	var confidence float64
	switch {
	case cv < 0.15:
		patternType, confidence = "steady", 0.95
	case cv < 0.35:
		patternType, confidence = "moderate", 0.85
	case cv < 0.70:
		patternType, confidence = "spiky", 0.80
	default:
		patternType, confidence = "highly-variable", 0.75
	}

	return UsagePattern{
		Type:       patternType,
		Variation:  cv,
		Confidence: confidence,
	}
}
