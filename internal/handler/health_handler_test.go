package handler_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-grader/internal/handler"
	"github.com/noah-isme/gema-exam-grader/internal/service"
	"github.com/noah-isme/gema-exam-grader/pkg/ai"
)

type healthyStage struct{}

func (healthyStage) HealthCheck(context.Context) bool { return true }

func TestHealthHandlerReportsRegistryStatus(t *testing.T) {
	registry := service.NewServiceRegistry([]service.ServiceInitializer{
		{Name: service.ServiceLLM, Init: func(context.Context, *service.ServiceRegistry) (interface{}, error) {
			return healthyStage{}, nil
		}},
	}, ai.RetryPolicy{MaxAttempts: 1}, zerolog.Nop())
	registry.Initialize(context.Background())

	app := fiber.New()
	app.Get("/api/v1/health", handler.NewHealthHandler(registry, "grader", "test", zerolog.New(io.Discard)).Check)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Data handler.HealthResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Equal(t, service.StatusHealthy, response.Data.Status)
	require.Equal(t, "grader", response.Data.Service)
	require.True(t, response.Data.Registry.Services[service.ServiceLLM].Healthy)
}

func TestHealthHandlerUnhealthyAndRestart(t *testing.T) {
	attempts := 0
	registry := service.NewServiceRegistry([]service.ServiceInitializer{
		{Name: service.ServiceOCR, Init: func(context.Context, *service.ServiceRegistry) (interface{}, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("credentials missing")
			}
			return healthyStage{}, nil
		}},
	}, ai.RetryPolicy{MaxAttempts: 1}, zerolog.Nop())
	registry.Initialize(context.Background())

	h := handler.NewHealthHandler(registry, "grader", "test", zerolog.New(io.Discard))
	app := fiber.New()
	app.Get("/api/v1/health", h.Check)
	app.Post("/api/v2/grading/services/restart", h.Restart)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/v2/grading/services/restart", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Data struct {
			Restarted int `json:"restarted"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Equal(t, 1, response.Data.Restarted)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
