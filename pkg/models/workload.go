package models

import (
	"encoding/json"
	"fmt"
)

// ResourceKind identifies the resource a quantity measures
type ResourceKind string

const (
	ResourceCPU    ResourceKind = "cpu"
	ResourceMemory ResourceKind = "memory"
)

// ResourceKinds lists the kinds the audit compares, in report order
var ResourceKinds = []ResourceKind{ResourceCPU, ResourceMemory}

// Unit returns the normalized unit for the kind
func (k ResourceKind) Unit() string {
	switch k {
	case ResourceCPU:
		return "m"
	case ResourceMemory:
		return "Mi"
	}
	return ""
}

// ResourceQuantity is a parsed quantity.
// Normalized is milli-cores for CPU and mebibytes for memory, never negative.
type ResourceQuantity struct {
	Kind       ResourceKind `json:"kind"`
	Raw        string       `json:"raw"`
	Normalized float64      `json:"normalized"`
}

// IsZero reports whether the quantity normalizes to zero
func (q ResourceQuantity) IsZero() bool {
	return q.Normalized == 0
}

func (q ResourceQuantity) String() string {
	return q.Raw
}

// MarshalJSON renders the quantity as its raw string, e.g. "250m"
func (q ResourceQuantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Raw)
}

// ResourceList maps a resource kind to its quantity
type ResourceList map[ResourceKind]ResourceQuantity

// Get returns the quantity for kind and whether it was declared
func (l ResourceList) Get(kind ResourceKind) (ResourceQuantity, bool) {
	q, ok := l[kind]
	return q, ok
}

// ContainerResources holds the declared requests and limits of one container
type ContainerResources struct {
	Name     string       `json:"container"`
	Requests ResourceList `json:"requests"`
	Limits   ResourceList `json:"limits"`
}

// WorkloadKind represents the Kubernetes workload types the audit covers
type WorkloadKind string

const (
	WorkloadDeployment  WorkloadKind = "Deployment"
	WorkloadStatefulSet WorkloadKind = "StatefulSet"
)

// ParseWorkloadKind accepts the lower-case API spelling ("deployment") as well as the kind name
func ParseWorkloadKind(s string) (WorkloadKind, bool) {
	switch s {
	case "deployment", "Deployment", "deployments":
		return WorkloadDeployment, true
	case "statefulset", "StatefulSet", "statefulsets":
		return WorkloadStatefulSet, true
	}
	return "", false
}

// APIName returns the lower-case spelling used in HTTP payloads
func (k WorkloadKind) APIName() string {
	switch k {
	case WorkloadDeployment:
		return "deployment"
	case WorkloadStatefulSet:
		return "statefulset"
	}
	return string(k)
}

func (k WorkloadKind) MarshalText() ([]byte, error) {
	return []byte(k.APIName()), nil
}

func (k *WorkloadKind) UnmarshalText(b []byte) error {
	kind, ok := ParseWorkloadKind(string(b))
	if !ok {
		return fmt.Errorf("unknown workload type %q", string(b))
	}
	*k = kind
	return nil
}

// WorkloadDescriptor represents a workload and the current resources of its containers
type WorkloadDescriptor struct {
	Namespace  string               `json:"namespace"`
	Name       string               `json:"name"`
	Kind       WorkloadKind         `json:"type"`
	Containers []ContainerResources `json:"current_resources"`
}
