package server

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auditor is the audit API served over HTTP
type Auditor interface {
	ListNamespaces(ctx context.Context) ([]string, error)
	ListWorkloadsWithCurrentResources(ctx context.Context, namespace string) ([]models.WorkloadDescriptor, error)
	GetRecommendations(ctx context.Context, namespace, workload string, kind models.WorkloadKind, window string) ([]models.Recommendation, error)
	AuditGaps(ctx context.Context, threshold models.GapThreshold) (*models.GapReport, error)
}

// ReadinessCheck reports whether a dependency is reachable
type ReadinessCheck func(ctx context.Context) error

type Options struct {
	// Threshold applies when a request does not set one
	Threshold models.GapThreshold
	// TimeWindow applies when a recommendation request does not set one
	TimeWindow string
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Checks   map[string]ReadinessCheck

	// ReadinessTimeout bounds each check. Zero means DefaultReadinessTimeout.
	ReadinessTimeout time.Duration
}

const DefaultReadinessTimeout = 2 * time.Second

type Server struct {
	app     *fiber.App
	auditor Auditor
	opts    Options
	log     logr.Logger
}

func New(a Auditor, opts Options, log logr.Logger) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "k8s-gap-auditor",
			ReadTimeout:           10 * time.Second,
			DisableStartupMessage: true,
		}),
		auditor: a,
		opts:    opts,
		log:     log,
	}

	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(s.accessLog)

	s.app.Get("/healthz", s.health)
	s.app.Get("/readyz", s.ready)
	if opts.Gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	s.app.Get("/namespaces", s.listNamespaces)
	s.app.Get("/workloads", s.listWorkloads)
	s.app.Post("/recommendations", s.getRecommendations)
	s.app.Get("/audit/gaps", s.auditGaps)
	return s
}

// App exposes the underlying fiber app, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.log.Info("Listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.log.V(1).Info("Request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start).String(),
		"requestID", c.GetRespHeader(fiber.HeaderXRequestID))
	return err
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy", "timestamp": time.Now()})
}

func (s *Server) ready(c *fiber.Ctx) error {
	timeout := s.opts.ReadinessTimeout
	if timeout <= 0 {
		timeout = DefaultReadinessTimeout
	}

	failed := fiber.Map{}
	for name, check := range s.opts.Checks {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		err := check(ctx)
		cancel()
		if err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "checks": failed})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}
