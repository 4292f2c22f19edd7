package models

import "time"

// GapResult is the comparison of one resource of one container
type GapResult struct {
	Resource         ResourceKind `json:"resource"`
	Current          string       `json:"current"`
	Recommended      string       `json:"recommended"`
	CurrentValue     float64      `json:"current_value"`
	RecommendedValue float64      `json:"recommended_value"`
	GapPercent       float64      `json:"gap_percent"`
	Exceeds          bool         `json:"exceeds"`
}

// GapEntry is a container whose requests diverge from the recommendation
type GapEntry struct {
	Namespace    string                     `json:"namespace"`
	Workload     string                     `json:"workload"`
	WorkloadType WorkloadKind               `json:"type"`
	Container    string                     `json:"container"`
	PerResource  map[ResourceKind]GapResult `json:"per_resource"`
}

// Exceeds reports whether any resource of the entry is over its threshold
func (e GapEntry) Exceeds() bool {
	for _, r := range e.PerResource {
		if r.Exceeds {
			return true
		}
	}
	return false
}

// WorkloadFailure records a workload that could not be audited
type WorkloadFailure struct {
	Namespace    string       `json:"namespace"`
	Workload     string       `json:"workload,omitempty"`
	WorkloadType WorkloadKind `json:"type,omitempty"`
	Error        string       `json:"error"`
}

// ScanStats counts what an audit run looked at
type ScanStats struct {
	Namespaces          int `json:"namespaces"`
	Workloads           int `json:"workloads"`
	Containers          int `json:"containers"`
	ContainersCompared  int `json:"containers_compared"`
	ContainersUnmatched int `json:"containers_unmatched"`
}

// GapReport is the result of an audit run
type GapReport struct {
	RunID       string            `json:"run_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Threshold   GapThreshold      `json:"threshold"`
	TimeWindow  string            `json:"time_window"`
	Entries     []GapEntry        `json:"workloads_with_gaps"`
	Failures    []WorkloadFailure `json:"failures,omitempty"`
	Stats       ScanStats         `json:"stats"`
}
