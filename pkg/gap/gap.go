// Package gap compares declared resource requests with recommended values.
package gap

import (
	"math"

	"github.com/opscart/k8s-gap-auditor/pkg/models"
)

// Compute returns the gap between current and recommended as a percentage of
// current, and whether it is strictly greater than thresholdPercent.
// A zero current value has no defined relative gap and yields (0, false).
func Compute(current, recommended, thresholdPercent float64) (gapPercent float64, exceeds bool) {
	if current == 0 {
		return 0, false
	}
	gapPercent = math.Abs(current-recommended) / current * 100
	return gapPercent, gapPercent > thresholdPercent
}

// ForResource compares two quantities of the same kind
func ForResource(kind models.ResourceKind, current, recommended models.ResourceQuantity, thresholdPercent float64) models.GapResult {
	pct, exceeds := Compute(current.Normalized, recommended.Normalized, thresholdPercent)
	return models.GapResult{
		Resource:         kind,
		Current:          current.Raw,
		Recommended:      recommended.Raw,
		CurrentValue:     current.Normalized,
		RecommendedValue: recommended.Normalized,
		GapPercent:       pct,
		Exceeds:          exceeds,
	}
}
