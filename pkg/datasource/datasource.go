package datasource

import (
	"context"
	"time"

	"github.com/opscart/k8s-gap-auditor/pkg/models"
)

// DataSource defines the interface for collecting container usage history
type DataSource interface {
	// ContainerUsage returns usage per container for the pods of namespace
	// whose name matches podPattern (an RE2 expression, fully anchored).
	ContainerUsage(ctx context.Context, namespace, podPattern string, window time.Duration) ([]models.ContainerUsage, error)
	IsAvailable(ctx context.Context) bool
	Name() string
}

type Config struct {
	PrometheusURL string
	// Step is the resolution of range queries. Zero means DefaultStep.
	Step time.Duration
}

const (
	DefaultStep = 5 * time.Minute
	// maxPoints stays below the Prometheus limit of 11000 points per series
	maxPoints = 10000
)
