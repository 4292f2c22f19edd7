package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/opscart/k8s-gap-auditor/pkg/models"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// writeReportCSV writes one row per container and resource, followed by the summary
func writeReportCSV(writer io.Writer, report *models.GapReport, summary *Summary) error {
	w := csv.NewWriter(writer)

	header := []string{
		"Namespace",
		"Workload",
		"Type",
		"Container",
		"Resource",
		"Current",
		"Recommended",
		"Current Value",
		"Recommended Value",
		"Gap (%)",
		"Exceeds",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range report.Entries {
		for _, kind := range models.ResourceKinds {
			r, ok := e.PerResource[kind]
			if !ok {
				continue
			}
			row := []string{
				e.Namespace,
				e.Workload,
				e.WorkloadType.APIName(),
				e.Container,
				string(kind),
				r.Current,
				r.Recommended,
				formatFloat(r.CurrentValue),
				formatFloat(r.RecommendedValue),
				formatFloat(r.GapPercent),
				strconv.FormatBool(r.Exceeds),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	rows := [][]string{
		{},
		{"SUMMARY"},
		{"Run ID", report.RunID},
		{"Time Window", report.TimeWindow},
		{"Workloads Scanned", strconv.Itoa(summary.Stats.Workloads)},
		{"Containers Over Threshold", strconv.Itoa(summary.Entries)},
		{"Failures", strconv.Itoa(summary.Failures)},
		{},
		{"NAMESPACE BREAKDOWN"},
		{"Namespace", "Workloads", "Containers", "CPU Violations", "Memory Violations"},
	}
	for _, ns := range summary.NamespaceStats {
		rows = append(rows, []string{
			ns.Namespace,
			strconv.Itoa(ns.Workloads),
			strconv.Itoa(ns.Containers),
			strconv.Itoa(ns.CPUViolations),
			strconv.Itoa(ns.MemoryViolations),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV summary: %w", err)
	}
	return nil
}

func writeWorkloadsCSV(writer io.Writer, workloads []models.WorkloadDescriptor) error {
	w := csv.NewWriter(writer)
	rows := [][]string{{"Namespace", "Workload", "Type", "Container", "Request CPU", "Request MEM", "Limit CPU", "Limit MEM"}}
	for _, wl := range workloads {
		for _, c := range wl.Containers {
			rows = append(rows, []string{
				wl.Namespace, wl.Name, wl.Kind.APIName(), c.Name,
				rawOrDash(c.Requests, models.ResourceCPU),
				rawOrDash(c.Requests, models.ResourceMemory),
				rawOrDash(c.Limits, models.ResourceCPU),
				rawOrDash(c.Limits, models.ResourceMemory),
			})
		}
	}
	return w.WriteAll(rows)
}

func writeRecommendationsCSV(writer io.Writer, namespace, workload string, recs []models.Recommendation) error {
	w := csv.NewWriter(writer)
	rows := [][]string{{"Namespace", "Workload", "Container", "Request CPU", "Request MEM", "Limit CPU", "Limit MEM", "Samples"}}
	for _, r := range recs {
		rows = append(rows, []string{
			namespace, workload, r.Container,
			rawOrDash(r.Requests, models.ResourceCPU),
			rawOrDash(r.Requests, models.ResourceMemory),
			rawOrDash(r.Limits, models.ResourceCPU),
			rawOrDash(r.Limits, models.ResourceMemory),
			strconv.Itoa(r.Samples),
		})
	}
	return w.WriteAll(rows)
}
