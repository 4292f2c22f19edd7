package auditor

import (
	"github.com/opscart/k8s-gap-auditor/pkg/gap"
	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/opscart/k8s-gap-auditor/pkg/quantity"
)

type comparison struct {
	entries   []models.GapEntry
	compared  int
	unmatched []string
}

// CheckWorkload pairs the containers of a workload with their recommendations
// by name and returns an entry for each container with at least one resource
// gap over threshold. Containers without a recommendation are skipped.
// Requests are compared, never limits.
func CheckWorkload(w models.WorkloadDescriptor, recs []models.Recommendation, threshold models.GapThreshold) ([]models.GapEntry, error) {
	cmp, err := compareWorkload(w, recs, threshold)
	if err != nil {
		return nil, err
	}
	return cmp.entries, nil
}

func compareWorkload(w models.WorkloadDescriptor, recs []models.Recommendation, threshold models.GapThreshold) (comparison, error) {
	var cmp comparison

	byContainer, err := indexRecommendations(w, recs)
	if err != nil {
		return cmp, err
	}

	seen := make(map[string]struct{}, len(w.Containers))
	for _, c := range w.Containers {
		if _, dup := seen[c.Name]; dup {
			return cmp, &DataIntegrityError{
				Namespace: w.Namespace,
				Workload:  w.Name,
				Container: c.Name,
				Reason:    "container name appears more than once in the workload",
			}
		}
		seen[c.Name] = struct{}{}

		rec, ok := byContainer[c.Name]
		if !ok {
			cmp.unmatched = append(cmp.unmatched, c.Name)
			continue
		}
		cmp.compared++

		entry := models.GapEntry{
			Namespace:    w.Namespace,
			Workload:     w.Name,
			WorkloadType: w.Kind,
			Container:    c.Name,
			PerResource:  make(map[models.ResourceKind]models.GapResult, len(models.ResourceKinds)),
		}
		for _, kind := range models.ResourceKinds {
			recommended, ok := rec.Requests.Get(kind)
			if !ok {
				// nothing to compare against
				continue
			}
			current, ok := c.Requests.Get(kind)
			if !ok {
				current = quantity.Zero(kind)
			}
			entry.PerResource[kind] = gap.ForResource(kind, current, recommended, threshold.For(kind))
		}

		if entry.Exceeds() {
			cmp.entries = append(cmp.entries, entry)
		}
	}
	return cmp, nil
}

func indexRecommendations(w models.WorkloadDescriptor, recs []models.Recommendation) (map[string]models.Recommendation, error) {
	byContainer := make(map[string]models.Recommendation, len(recs))
	for _, r := range recs {
		if _, dup := byContainer[r.Container]; dup {
			return nil, &DataIntegrityError{
				Namespace: w.Namespace,
				Workload:  w.Name,
				Container: r.Container,
				Reason:    "container has more than one recommendation",
			}
		}
		byContainer[r.Container] = r
	}
	return byContainer, nil
}
