package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/opscart/k8s-gap-auditor/pkg/models"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatJSON  ReportFormat = "json"
	FormatTable ReportFormat = "table"
	FormatCSV   ReportFormat = "csv"
)

// ParseFormat validates an output format name
func ParseFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(s); f {
	case FormatJSON, FormatTable, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want json, table or csv)", s)
}

// Summary aggregates the entries of a gap report
type Summary struct {
	Entries           int                  `json:"entries"`
	CPUViolations     int                  `json:"cpu_violations"`
	MemoryViolations  int                  `json:"memory_violations"`
	NamespaceStats    []*NamespaceStats    `json:"namespaces"`
	WorkloadTypeStats []*WorkloadTypeStats `json:"workload_types"`
	Stats             models.ScanStats     `json:"stats"`
	Failures          int                  `json:"failures"`
}

// NamespaceStats holds statistics per namespace
type NamespaceStats struct {
	Namespace        string `json:"namespace"`
	Workloads        int    `json:"workloads"`
	Containers       int    `json:"containers"`
	CPUViolations    int    `json:"cpu_violations"`
	MemoryViolations int    `json:"memory_violations"`
}

// WorkloadTypeStats holds statistics per workload type
type WorkloadTypeStats struct {
	WorkloadType models.WorkloadKind `json:"type"`
	Workloads    int                 `json:"workloads"`
	Containers   int                 `json:"containers"`
}

// Summarize computes per-namespace and per-workload-type statistics.
// Both lists are sorted by name.
func Summarize(report *models.GapReport) *Summary {
	s := &Summary{
		Entries:  len(report.Entries),
		Stats:    report.Stats,
		Failures: len(report.Failures),
	}

	byNamespace := make(map[string]*NamespaceStats)
	byType := make(map[models.WorkloadKind]*WorkloadTypeStats)
	seen := make(map[string]struct{})

	for _, e := range report.Entries {
		ns, ok := byNamespace[e.Namespace]
		if !ok {
			ns = &NamespaceStats{Namespace: e.Namespace}
			byNamespace[e.Namespace] = ns
		}
		wt, ok := byType[e.WorkloadType]
		if !ok {
			wt = &WorkloadTypeStats{WorkloadType: e.WorkloadType}
			byType[e.WorkloadType] = wt
		}

		ns.Containers++
		wt.Containers++
		workloadKey := e.Namespace + "/" + string(e.WorkloadType) + "/" + e.Workload
		if _, dup := seen[workloadKey]; !dup {
			seen[workloadKey] = struct{}{}
			ns.Workloads++
			wt.Workloads++
		}

		if e.PerResource[models.ResourceCPU].Exceeds {
			ns.CPUViolations++
			s.CPUViolations++
		}
		if e.PerResource[models.ResourceMemory].Exceeds {
			ns.MemoryViolations++
			s.MemoryViolations++
		}
	}

	for _, ns := range byNamespace {
		s.NamespaceStats = append(s.NamespaceStats, ns)
	}
	sort.Slice(s.NamespaceStats, func(i, j int) bool {
		return s.NamespaceStats[i].Namespace < s.NamespaceStats[j].Namespace
	})
	for _, wt := range byType {
		s.WorkloadTypeStats = append(s.WorkloadTypeStats, wt)
	}
	sort.Slice(s.WorkloadTypeStats, func(i, j int) bool {
		return s.WorkloadTypeStats[i].WorkloadType < s.WorkloadTypeStats[j].WorkloadType
	})
	return s
}

// Reporter renders audit results
type Reporter struct {
	format ReportFormat
}

// New creates a new reporter
func New(format ReportFormat) *Reporter {
	return &Reporter{format: format}
}

// WriteReport renders a gap report followed by its summary
func (r *Reporter) WriteReport(w io.Writer, report *models.GapReport) error {
	switch r.format {
	case FormatTable:
		return writeReportTable(w, report, Summarize(report))
	case FormatCSV:
		return writeReportCSV(w, report, Summarize(report))
	}
	return writeJSON(w, struct {
		*models.GapReport
		Summary *Summary `json:"summary"`
	}{report, Summarize(report)})
}

// WriteWorkloads renders workloads with their current resources
func (r *Reporter) WriteWorkloads(w io.Writer, workloads []models.WorkloadDescriptor) error {
	switch r.format {
	case FormatTable:
		return writeWorkloadsTable(w, workloads)
	case FormatCSV:
		return writeWorkloadsCSV(w, workloads)
	}
	return writeJSON(w, map[string]interface{}{"workloads": workloads})
}

// WriteRecommendations renders the recommendations of one workload
func (r *Reporter) WriteRecommendations(w io.Writer, namespace, workload string, recs []models.Recommendation) error {
	switch r.format {
	case FormatTable:
		return writeRecommendationsTable(w, namespace, workload, recs)
	case FormatCSV:
		return writeRecommendationsCSV(w, namespace, workload, recs)
	}
	return writeJSON(w, map[string]interface{}{
		"namespace":       namespace,
		"workload":        workload,
		"recommendations": recs,
	})
}

// WriteNamespaces renders namespace names
func (r *Reporter) WriteNamespaces(w io.Writer, namespaces []string) error {
	if r.format == FormatJSON {
		return writeJSON(w, map[string]interface{}{"namespaces": namespaces})
	}
	for _, ns := range namespaces {
		if _, err := fmt.Fprintln(w, ns); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func rawOrDash(l models.ResourceList, kind models.ResourceKind) string {
	if q, ok := l.Get(kind); ok {
		return q.Raw
	}
	return "-"
}

func gapCell(e models.GapEntry, kind models.ResourceKind) (current, recommended, gap string) {
	r, ok := e.PerResource[kind]
	if !ok {
		return "-", "-", "-"
	}
	gap = fmt.Sprintf("%.1f%%", r.GapPercent)
	if r.Exceeds {
		gap += " !"
	}
	return r.Current, r.Recommended, gap
}
