package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-exam-grader/internal/utils"
)

// Roles understood by the grading API.
const (
	AuthRoleAny     = "any"
	AuthRoleAdmin   = "admin"
	AuthRoleTeacher = "teacher"
)

// AuthOptions configures WithAuth.
type AuthOptions struct {
	Role string
	// AllowAnonymous lets requests without a user through when Role is AuthRoleAny.
	AllowAnonymous bool
}

// WithAuth guards a single handler. Teachers pass AuthRoleTeacher checks and
// admins pass every check.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}
	anonymous := opts.AllowAnonymous && role == AuthRoleAny

	return func(c *fiber.Ctx) error {
		if UserID(c) == "" {
			if anonymous {
				return handler(c)
			}
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		if !roleSatisfies(UserRole(c), role) {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", fiber.Map{"required_role": role})
		}
		return handler(c)
	}
}

func roleSatisfies(current, required string) bool {
	switch required {
	case AuthRoleAny:
		return true
	case AuthRoleTeacher:
		return current == AuthRoleTeacher || current == AuthRoleAdmin
	case AuthRoleAdmin:
		return current == AuthRoleAdmin
	default:
		return current == required || current == AuthRoleAdmin
	}
}
