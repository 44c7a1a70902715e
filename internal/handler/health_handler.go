package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-grader/internal/service"
	"github.com/noah-isme/gema-exam-grader/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string               `json:"status"`
	Timestamp   time.Time            `json:"timestamp"`
	Service     string               `json:"service"`
	Environment string               `json:"environment"`
	Registry    service.HealthReport `json:"registry"`
}

// HealthHandler reports sub-service health and restarts failed services.
type HealthHandler struct {
	registry    *service.ServiceRegistry
	serviceName string
	environment string
	logger      zerolog.Logger
}

// NewHealthHandler constructs the health handler.
func NewHealthHandler(registry *service.ServiceRegistry, serviceName, environment string, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		registry:    registry,
		serviceName: serviceName,
		environment: environment,
		logger:      logger.With().Str("component", "health_handler").Logger(),
	}
}

// Check re-probes the registered services. Unhealthy registries answer 503.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	report := h.registry.CheckHealth(c.UserContext())
	payload := HealthResponse{
		Status:      report.Status,
		Timestamp:   time.Now().UTC(),
		Service:     h.serviceName,
		Environment: h.environment,
		Registry:    report,
	}

	if report.Status == service.StatusUnhealthy {
		return utils.Fail(c, fiber.StatusServiceUnavailable, "service unhealthy", payload)
	}
	return utils.SendSuccess(c, "service "+report.Status, payload)
}

// Restart re-runs the initializers of failed services.
func (h *HealthHandler) Restart(c *fiber.Ctx) error {
	restarted := h.registry.RestartFailedServices(c.UserContext())
	report := h.registry.Report()
	h.logger.Info().Int("restarted", restarted).Str("status", report.Status).Msg("service restart requested")

	return utils.SendSuccess(c, "failed services restarted", fiber.Map{
		"restarted": restarted,
		"report":    report,
	})
}
