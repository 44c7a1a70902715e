package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-grader/internal/config"
	"github.com/noah-isme/gema-exam-grader/internal/handler"
	"github.com/noah-isme/gema-exam-grader/internal/middleware"
	"github.com/noah-isme/gema-exam-grader/internal/router"
	"github.com/noah-isme/gema-exam-grader/internal/service"
	"github.com/noah-isme/gema-exam-grader/pkg/ai"
)

const testSecret = "router-secret"

func signedToken(t *testing.T, subject, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	registry := service.NewServiceRegistry(nil, ai.RetryPolicy{MaxAttempts: 1}, zerolog.Nop())
	registry.Initialize(context.Background())

	app := fiber.New()
	router.Register(app, config.Config{AppName: "grader", RateLimitMax: 100, RateLimitWindow: time.Minute}, router.Dependencies{
		HealthHandler: handler.NewHealthHandler(registry, "grader", "test", zerolog.Nop()),
		JWTMiddleware: middleware.JWTProtected(testSecret),
	})
	return app
}

func TestRouterPublicRoutes(t *testing.T) {
	app := newApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "grader", resp.Header.Get("X-Application"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRouterRestartRequiresAdmin(t *testing.T) {
	app := newApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/grading/services/restart", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/api/v2/grading/services/restart", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "teacher-1", "teacher"))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/api/v2/grading/services/restart", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "admin-1", "admin"))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRouterRejectsStudents(t *testing.T) {
	app := newApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/grading/services/restart", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "student-1", "student"))
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
