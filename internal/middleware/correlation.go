package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/noah-isme/gema-exam-grader/internal/observability"
	"github.com/noah-isme/gema-exam-grader/internal/utils"
)

// RequestIDHeader carries the request identifier in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 128

// RequestID tags every request with an identifier. A caller supplied
// X-Request-ID (or legacy X-Correlation-ID) is reused when it is sane.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(RequestIDHeader))
		if id == "" {
			id = strings.TrimSpace(c.Get("X-Correlation-ID"))
		}
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}

		c.Locals(utils.RequestIDLocal, id)
		c.Set(RequestIDHeader, id)
		c.SetUserContext(observability.WithRequestID(c.UserContext(), id))

		return c.Next()
	}
}

// GetRequestID returns the identifier assigned by RequestID.
func GetRequestID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(utils.RequestIDLocal).(string); ok {
		return id
	}
	return observability.RequestIDFromContext(c.UserContext())
}
