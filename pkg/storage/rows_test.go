package storage

import (
	"database/sql"
	"testing"

	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/opscart/k8s-gap-auditor/pkg/quantity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerRowRoundTrip(t *testing.T) {
	rec := models.Recommendation{
		Container: "web",
		Requests: models.ResourceList{
			models.ResourceCPU:    quantity.MustParse("250m", models.ResourceCPU),
			models.ResourceMemory: quantity.MustParse("512Mi", models.ResourceMemory),
		},
		Limits: models.ResourceList{
			models.ResourceMemory: quantity.MustParse("512Mi", models.ResourceMemory),
		},
		Samples: 4032,
	}

	row := fromRecommendation(rec)
	assert.False(t, row.LimitsCPU.Valid)
	assert.Equal(t, "250m", row.RequestsCPU.String)

	got, err := row.toRecommendation()
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestContainerRowCorruptedQuantity(t *testing.T) {
	row := containerRow{
		Container:      "web",
		RequestsCPU:    sql.NullString{String: "fast", Valid: true},
		RequestsMemory: sql.NullString{String: "512Mi", Valid: true},
	}

	_, err := row.toRecommendation()

	var pe *quantity.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "requests.cpu", pe.Field)
	assert.Equal(t, "web", pe.Container)
}

func TestContainerRowNullsAreOmitted(t *testing.T) {
	row := containerRow{
		Container:      "batch",
		RequestsMemory: sql.NullString{String: "64Mi", Valid: true},
	}

	rec, err := row.toRecommendation()

	require.NoError(t, err)
	_, hasCPU := rec.Requests.Get(models.ResourceCPU)
	assert.False(t, hasCPU)
	assert.Empty(t, rec.Limits)
}
