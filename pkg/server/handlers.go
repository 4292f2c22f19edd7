package server

import (
	"errors"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/opscart/k8s-gap-auditor/pkg/auditor"
	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/opscart/k8s-gap-auditor/pkg/quantity"
	"github.com/opscart/k8s-gap-auditor/pkg/recommender"
)

type recommendationRequest struct {
	Namespace    string `json:"namespace"`
	Workload     string `json:"workload"`
	WorkloadType string `json:"workload_type"`
	TimeWindow   string `json:"time_window"`
}

func (s *Server) listNamespaces(c *fiber.Ctx) error {
	namespaces, err := s.auditor.ListNamespaces(c.UserContext())
	if err != nil {
		return s.fail(c, "Failed to list namespaces", err)
	}
	return c.JSON(fiber.Map{"namespaces": namespaces})
}

func (s *Server) listWorkloads(c *fiber.Ctx) error {
	namespace := c.Query("namespace")
	if namespace == "" {
		return badRequest(c, "namespace query parameter is required")
	}

	workloads, err := s.auditor.ListWorkloadsWithCurrentResources(c.UserContext(), namespace)
	if err != nil {
		return s.fail(c, "Failed to list workloads", err)
	}
	if workloads == nil {
		workloads = []models.WorkloadDescriptor{}
	}
	return c.JSON(fiber.Map{"workloads": workloads})
}

func (s *Server) getRecommendations(c *fiber.Ctx) error {
	req := recommendationRequest{
		WorkloadType: models.WorkloadDeployment.APIName(),
		TimeWindow:   s.opts.TimeWindow,
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if req.Namespace == "" || req.Workload == "" {
		return badRequest(c, "namespace and workload are required")
	}
	kind, ok := models.ParseWorkloadKind(req.WorkloadType)
	if !ok {
		return badRequest(c, "workload_type must be deployment or statefulset")
	}

	recs, err := s.auditor.GetRecommendations(c.UserContext(), req.Namespace, req.Workload, kind, req.TimeWindow)
	if err != nil {
		return s.fail(c, "Failed to get recommendations", err)
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	return c.JSON(fiber.Map{
		"workload":        req.Workload,
		"namespace":       req.Namespace,
		"recommendations": recs,
	})
}

func (s *Server) auditGaps(c *fiber.Ctx) error {
	threshold := s.opts.Threshold
	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"cpu_threshold", &threshold.CPUPercent},
		{"memory_threshold", &threshold.MemoryPercent},
	} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return badRequest(c, p.name+" must be a non-negative number")
		}
		*p.dst = v
	}

	report, err := s.auditor.AuditGaps(c.UserContext(), threshold)
	if err != nil {
		return s.fail(c, "Gap audit failed", err)
	}
	return c.JSON(report)
}

func badRequest(c *fiber.Ctx, details string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "Bad request",
		"details": details,
	})
}

func (s *Server) fail(c *fiber.Ctx, message string, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.log.Error(err, message, "path", c.Path())
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   message,
		"details": err.Error(),
	})
}

func statusFor(err error) int {
	var (
		pe  *quantity.ParseError
		die *auditor.DataIntegrityError
		ue  *auditor.UpstreamError
	)
	switch {
	case errors.Is(err, recommender.ErrInvalidWindow):
		return fiber.StatusBadRequest
	case errors.As(err, &pe), errors.As(err, &die):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &ue):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}
