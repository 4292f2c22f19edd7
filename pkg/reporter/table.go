package reporter

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/opscart/k8s-gap-auditor/pkg/models"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	return table
}

func writeReportTable(w io.Writer, report *models.GapReport, summary *Summary) error {
	fmt.Fprintf(w, "Gap audit %s (window %s, thresholds cpu %.0f%% memory %.0f%%)\n\n",
		report.RunID, report.TimeWindow, report.Threshold.CPUPercent, report.Threshold.MemoryPercent)

	if len(report.Entries) == 0 {
		fmt.Fprintln(w, "No containers exceed the gap thresholds.")
	} else {
		table := newTable(w, []string{
			"Namespace", "Workload", "Type", "Container",
			"CPU Request", "CPU Recommended", "CPU Gap",
			"Mem Request", "Mem Recommended", "Mem Gap",
		})
		for _, e := range report.Entries {
			cpuCur, cpuRec, cpuGap := gapCell(e, models.ResourceCPU)
			memCur, memRec, memGap := gapCell(e, models.ResourceMemory)
			table.Append([]string{
				e.Namespace, e.Workload, e.WorkloadType.APIName(), e.Container,
				cpuCur, cpuRec, cpuGap,
				memCur, memRec, memGap,
			})
		}
		table.Render()
	}

	if len(report.Failures) > 0 {
		fmt.Fprintf(w, "\nFailures (%d):\n", len(report.Failures))
		table := newTable(w, []string{"Namespace", "Workload", "Error"})
		for _, f := range report.Failures {
			table.Append([]string{f.Namespace, f.Workload, f.Error})
		}
		table.Render()
	}

	fmt.Fprintf(w, "\nScanned %d namespaces, %d workloads, %d containers (%d compared, %d without recommendation)\n",
		summary.Stats.Namespaces, summary.Stats.Workloads, summary.Stats.Containers,
		summary.Stats.ContainersCompared, summary.Stats.ContainersUnmatched)
	fmt.Fprintf(w, "Containers over threshold: %d (cpu %d, memory %d)\n",
		summary.Entries, summary.CPUViolations, summary.MemoryViolations)

	if len(summary.NamespaceStats) > 0 {
		fmt.Fprintln(w)
		table := newTable(w, []string{"Namespace", "Workloads", "Containers", "CPU Violations", "Memory Violations"})
		for _, ns := range summary.NamespaceStats {
			table.Append([]string{
				ns.Namespace,
				fmt.Sprint(ns.Workloads),
				fmt.Sprint(ns.Containers),
				fmt.Sprint(ns.CPUViolations),
				fmt.Sprint(ns.MemoryViolations),
			})
		}
		table.Render()
	}
	return nil
}

func writeWorkloadsTable(w io.Writer, workloads []models.WorkloadDescriptor) error {
	table := newTable(w, []string{"Namespace", "Workload", "Type", "Container", "Request CPU", "Request MEM", "Limit CPU", "Limit MEM"})
	for _, wl := range workloads {
		for _, c := range wl.Containers {
			table.Append([]string{
				wl.Namespace, wl.Name, wl.Kind.APIName(), c.Name,
				rawOrDash(c.Requests, models.ResourceCPU),
				rawOrDash(c.Requests, models.ResourceMemory),
				rawOrDash(c.Limits, models.ResourceCPU),
				rawOrDash(c.Limits, models.ResourceMemory),
			})
		}
	}
	table.Render()
	return nil
}

func writeRecommendationsTable(w io.Writer, namespace, workload string, recs []models.Recommendation) error {
	table := newTable(w, []string{"Namespace", "Workload", "Container", "Request CPU", "Request MEM", "Limit CPU", "Limit MEM", "Samples"})
	for _, r := range recs {
		table.Append([]string{
			namespace, workload, r.Container,
			rawOrDash(r.Requests, models.ResourceCPU),
			rawOrDash(r.Requests, models.ResourceMemory),
			rawOrDash(r.Limits, models.ResourceCPU),
			rawOrDash(r.Limits, models.ResourceMemory),
			fmt.Sprint(r.Samples),
		})
	}
	table.Render()
	return nil
}
