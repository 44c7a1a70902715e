package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-grader/internal/middleware"
)

func TestWithAuth(t *testing.T) {
	cases := []struct {
		name   string
		userID string
		role   string
		opts   middleware.AuthOptions
		status int
	}{
		{name: "teacher route accepts teacher", userID: "teacher-10", role: "Teacher", opts: middleware.AuthOptions{Role: middleware.AuthRoleTeacher}, status: fiber.StatusNoContent},
		{name: "teacher route accepts admin", userID: "admin-1", role: "admin", opts: middleware.AuthOptions{Role: middleware.AuthRoleTeacher}, status: fiber.StatusNoContent},
		{name: "teacher route rejects guest", userID: "guest-1", role: "guest", opts: middleware.AuthOptions{Role: middleware.AuthRoleTeacher}, status: fiber.StatusForbidden},
		{name: "restart rejects teacher", userID: "teacher-1", role: "teacher", opts: middleware.AuthOptions{Role: middleware.AuthRoleAdmin}, status: fiber.StatusForbidden},
		{name: "restart accepts admin", userID: "admin-1", role: "admin", opts: middleware.AuthOptions{Role: middleware.AuthRoleAdmin}, status: fiber.StatusNoContent},
		{name: "any requires a user", opts: middleware.AuthOptions{Role: middleware.AuthRoleAny}, status: fiber.StatusUnauthorized},
		{name: "any allows anonymous when opted in", opts: middleware.AuthOptions{AllowAnonymous: true}, status: fiber.StatusNoContent},
		{name: "anonymous opt-in ignored for roles", opts: middleware.AuthOptions{Role: middleware.AuthRoleAdmin, AllowAnonymous: true}, status: fiber.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(func(c *fiber.Ctx) error {
				if tc.userID != "" {
					c.Locals("user_id", tc.userID)
				}
				if tc.role != "" {
					c.Locals("user_role", tc.role)
				}
				return c.Next()
			})
			app.Post("/", middleware.WithAuth(func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusNoContent)
			}, tc.opts))

			resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/", nil), -1)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
