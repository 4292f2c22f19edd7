package storage

import (
	"database/sql"
	"errors"

	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/opscart/k8s-gap-auditor/pkg/quantity"
)

// containerRow is one recommendation as stored: raw quantity strings, NULL when not recommended
type containerRow struct {
	Container      string
	RequestsCPU    sql.NullString
	RequestsMemory sql.NullString
	LimitsCPU      sql.NullString
	LimitsMemory   sql.NullString
	Samples        int
}

func fromRecommendation(rec models.Recommendation) containerRow {
	requests := quantity.RawList(rec.Requests)
	limits := quantity.RawList(rec.Limits)
	return containerRow{
		Container:      rec.Container,
		RequestsCPU:    nullString(requests, models.ResourceCPU),
		RequestsMemory: nullString(requests, models.ResourceMemory),
		LimitsCPU:      nullString(limits, models.ResourceCPU),
		LimitsMemory:   nullString(limits, models.ResourceMemory),
		Samples:        rec.Samples,
	}
}

func nullString(raw map[string]string, kind models.ResourceKind) sql.NullString {
	s, ok := raw[string(kind)]
	return sql.NullString{String: s, Valid: ok}
}

func (r containerRow) toRecommendation() (models.Recommendation, error) {
	requests, err := quantity.ParseList("requests", rawMap(r.RequestsCPU, r.RequestsMemory))
	if err != nil {
		return models.Recommendation{}, withContainer(err, r.Container)
	}
	limits, err := quantity.ParseList("limits", rawMap(r.LimitsCPU, r.LimitsMemory))
	if err != nil {
		return models.Recommendation{}, withContainer(err, r.Container)
	}
	return models.Recommendation{
		Container: r.Container,
		Requests:  requests,
		Limits:    limits,
		Samples:   r.Samples,
	}, nil
}

func rawMap(cpu, memory sql.NullString) map[string]string {
	m := make(map[string]string, 2)
	if cpu.Valid {
		m[string(models.ResourceCPU)] = cpu.String
	}
	if memory.Valid {
		m[string(models.ResourceMemory)] = memory.String
	}
	return m
}

func withContainer(err error, container string) error {
	var pe *quantity.ParseError
	if errors.As(err, &pe) {
		pe.Container = container
	}
	return err
}
