package models

import "time"

// Sample represents a single metric data point
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// ContainerUsage holds the observed usage of one container across all pods
// of a workload over a time window
type ContainerUsage struct {
	Container string

	// CPU usage rate in millicores
	CPU []Sample
	// Memory working set in bytes
	Memory []Sample
}
