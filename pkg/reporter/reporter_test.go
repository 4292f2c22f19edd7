package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/opscart/k8s-gap-auditor/pkg/gap"
	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/opscart/k8s-gap-auditor/pkg/quantity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(ns, workload string, kind models.WorkloadKind, container, curCPU, recCPU, curMem, recMem string) models.GapEntry {
	cpu := gap.ForResource(models.ResourceCPU,
		quantity.MustParse(curCPU, models.ResourceCPU), quantity.MustParse(recCPU, models.ResourceCPU), 30)
	mem := gap.ForResource(models.ResourceMemory,
		quantity.MustParse(curMem, models.ResourceMemory), quantity.MustParse(recMem, models.ResourceMemory), 30)
	return models.GapEntry{
		Namespace:    ns,
		Workload:     workload,
		WorkloadType: kind,
		Container:    container,
		PerResource:  map[models.ResourceKind]models.GapResult{models.ResourceCPU: cpu, models.ResourceMemory: mem},
	}
}

func testReport() *models.GapReport {
	return &models.GapReport{
		RunID:       "run-1",
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Threshold:   models.DefaultGapThreshold(),
		TimeWindow:  "14d",
		Entries: []models.GapEntry{
			entry("prod", "api", models.WorkloadDeployment, "web", "200m", "500m", "256Mi", "256Mi"),
			entry("prod", "api", models.WorkloadDeployment, "envoy", "100m", "100m", "128Mi", "512Mi"),
			entry("data", "postgres", models.WorkloadStatefulSet, "db", "1", "2", "4Gi", "1Gi"),
		},
		Failures: []models.WorkloadFailure{{Namespace: "staging", Workload: "worker", Error: "recommend failed"}},
		Stats:    models.ScanStats{Namespaces: 3, Workloads: 5, Containers: 8, ContainersCompared: 7, ContainersUnmatched: 1},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(testReport())

	assert.Equal(t, 3, s.Entries)
	assert.Equal(t, 2, s.CPUViolations)
	assert.Equal(t, 2, s.MemoryViolations)
	assert.Equal(t, 1, s.Failures)

	require.Len(t, s.NamespaceStats, 2)
	assert.Equal(t, "data", s.NamespaceStats[0].Namespace)
	prod := s.NamespaceStats[1]
	assert.Equal(t, "prod", prod.Namespace)
	assert.Equal(t, 1, prod.Workloads)
	assert.Equal(t, 2, prod.Containers)
	assert.Equal(t, 1, prod.CPUViolations)
	assert.Equal(t, 1, prod.MemoryViolations)

	require.Len(t, s.WorkloadTypeStats, 2)
	assert.Equal(t, models.WorkloadDeployment, s.WorkloadTypeStats[0].WorkloadType)
	assert.Equal(t, 2, s.WorkloadTypeStats[0].Containers)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(&models.GapReport{})
	assert.Zero(t, s.Entries)
	assert.Empty(t, s.NamespaceStats)
}

func TestWriteReportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatJSON).WriteReport(&buf, testReport()))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "run-1", decoded["run_id"])
	entries, ok := decoded["workloads_with_gaps"].([]interface{})
	require.True(t, ok)
	assert.Len(t, entries, 3)

	first := entries[0].(map[string]interface{})
	cpu := first["per_resource"].(map[string]interface{})["cpu"].(map[string]interface{})
	assert.Equal(t, 150.0, cpu["gap_percent"])
	assert.Equal(t, "200m", cpu["current"])
	assert.Contains(t, decoded, "summary")
}

func TestWriteReportTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatTable).WriteReport(&buf, testReport()))
	out := buf.String()

	assert.Contains(t, out, "CPU GAP")
	assert.Contains(t, out, "150.0% !")
	assert.Contains(t, out, "postgres")
	assert.Contains(t, out, "recommend failed")
	assert.Contains(t, out, "Containers over threshold: 3 (cpu 2, memory 2)")
}

func TestWriteReportTableNoGaps(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatTable).WriteReport(&buf, &models.GapReport{TimeWindow: "14d"}))
	assert.Contains(t, buf.String(), "No containers exceed the gap thresholds.")
}

func TestWriteReportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatCSV).WriteReport(&buf, testReport()))

	r := csv.NewReader(strings.NewReader(buf.String()))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, "Namespace", records[0][0])
	// two resources for each of the three entries
	assert.Equal(t, []string{"prod", "api", "deployment", "web", "cpu", "200m", "500m", "200.00", "500.00", "150.00", "true"}, records[1])
	assert.Equal(t, "memory", records[2][4])
	assert.Contains(t, buf.String(), "NAMESPACE BREAKDOWN")
}

func TestWriteWorkloads(t *testing.T) {
	workloads := []models.WorkloadDescriptor{{
		Namespace: "prod",
		Name:      "api",
		Kind:      models.WorkloadDeployment,
		Containers: []models.ContainerResources{{
			Name:     "web",
			Requests: models.ResourceList{models.ResourceCPU: quantity.MustParse("200m", models.ResourceCPU)},
			Limits:   models.ResourceList{},
		}},
	}}

	var table bytes.Buffer
	require.NoError(t, New(FormatTable).WriteWorkloads(&table, workloads))
	assert.Contains(t, table.String(), "200m")

	var js bytes.Buffer
	require.NoError(t, New(FormatJSON).WriteWorkloads(&js, workloads))
	assert.Contains(t, js.String(), `"current_resources"`)

	var c bytes.Buffer
	require.NoError(t, New(FormatCSV).WriteWorkloads(&c, workloads))
	assert.Contains(t, c.String(), "prod,api,deployment,web,200m,-,-,-")
}

func TestWriteRecommendations(t *testing.T) {
	recs := []models.Recommendation{{
		Container: "web",
		Requests:  models.ResourceList{models.ResourceCPU: quantity.MustParse("120m", models.ResourceCPU)},
		Samples:   42,
	}}

	var js bytes.Buffer
	require.NoError(t, New(FormatJSON).WriteRecommendations(&js, "prod", "api", recs))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, "api", decoded["workload"])

	var c bytes.Buffer
	require.NoError(t, New(FormatCSV).WriteRecommendations(&c, "prod", "api", recs))
	assert.Contains(t, c.String(), "prod,api,web,120m,-,-,-,42")
}

func TestWriteNamespaces(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatTable).WriteNamespaces(&buf, []string{"default", "prod"}))
	assert.Equal(t, "default\nprod\n", buf.String())
}

func TestParseFormat(t *testing.T) {
	for _, f := range []string{"json", "table", "csv"} {
		got, err := ParseFormat(f)
		require.NoError(t, err)
		assert.Equal(t, ReportFormat(f), got)
	}
	_, err := ParseFormat("html")
	assert.Error(t, err)
}
