package extractor

import (
	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/opscart/k8s-gap-auditor/pkg/quantity"
	corev1 "k8s.io/api/core/v1"
)

// Extract reads the declared requests and limits of each container.
// Output order matches input order. A resource that is not declared is
// returned as the explicit zero quantity ("0m" / "0Mi").
func Extract(containers []corev1.Container) []models.ContainerResources {
	out := make([]models.ContainerResources, 0, len(containers))
	for _, c := range containers {
		out = append(out, models.ContainerResources{
			Name:     c.Name,
			Requests: resourceList(c.Resources.Requests),
			Limits:   resourceList(c.Resources.Limits),
		})
	}
	return out
}

func resourceList(list corev1.ResourceList) models.ResourceList {
	return models.ResourceList{
		models.ResourceCPU:    lookup(list, corev1.ResourceCPU, models.ResourceCPU),
		models.ResourceMemory: lookup(list, corev1.ResourceMemory, models.ResourceMemory),
	}
}

func lookup(list corev1.ResourceList, name corev1.ResourceName, kind models.ResourceKind) models.ResourceQuantity {
	if q, ok := list[name]; ok {
		return quantity.FromQuantity(kind, q)
	}
	return quantity.Zero(kind)
}
