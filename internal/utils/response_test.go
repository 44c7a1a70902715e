package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-grader/internal/utils"
)

type envelope struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	Meta      map[string]interface{} `json:"meta"`
	Details   map[string]interface{} `json:"details"`
	RequestID string                 `json:"request_id"`
}

func TestOKCarriesPaginationMeta(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.OK(c, fiber.Map{"submission_id": "sub-1"}, "", fiber.Map{"total": 3, "page": 1})
	})

	payload := perform(t, app, fiber.StatusOK)
	require.True(t, payload.Success)
	require.Equal(t, "success", payload.Message)
	require.Equal(t, "sub-1", payload.Data["submission_id"])
	require.Equal(t, float64(3), payload.Meta["total"])
	require.Empty(t, payload.RequestID)
}

func TestFailKeepsDetailsAndRequestID(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		c.Locals(utils.RequestIDLocal, "req-42")
		return utils.Fail(c, fiber.StatusConflict, "submission already processing", fiber.Map{"error_type": "already_processing"})
	})

	payload := perform(t, app, fiber.StatusConflict)
	require.False(t, payload.Success)
	require.Equal(t, "submission already processing", payload.Message)
	require.Equal(t, "already_processing", payload.Details["error_type"])
	require.Nil(t, payload.Data)
	require.Equal(t, "req-42", payload.RequestID)
}

func TestSendErrorDefaultsMessage(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusBadGateway, "")
	})

	payload := perform(t, app, fiber.StatusBadGateway)
	require.Equal(t, "error", payload.Message)
}

func perform(t *testing.T, app *fiber.App, wantStatus int) envelope {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)

	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}
