package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-exam-grader/internal/utils"
)

// GraderClaims are the token claims the grading API reads. Tokens issued by
// the main platform may carry the user under sub or user_id and the role as a
// string or a list.
type GraderClaims struct {
	UserID interface{} `json:"user_id,omitempty"`
	Role   interface{} `json:"role,omitempty"`
	Roles  interface{} `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTProtected validates HMAC bearer tokens and binds user_id and user_role.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(),
		jwt.SigningMethodHS384.Alg(),
		jwt.SigningMethodHS512.Alg(),
	}))
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		claims := &GraderClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		userID := firstSubject(claims.Subject, claims.UserID)
		if userID == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "token has no subject")
		}
		c.Locals("user_id", userID)
		if role := firstRole(claims.Role, claims.Roles); role != "" {
			c.Locals("user_role", role)
		}

		return c.Next()
	}
}

// UserID returns the authenticated user bound by JWTProtected.
func UserID(c *fiber.Ctx) string {
	if value, ok := c.Locals("user_id").(string); ok {
		return value
	}
	return ""
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func firstSubject(subject string, fallback interface{}) string {
	if trimmed := strings.TrimSpace(subject); trimmed != "" {
		return trimmed
	}
	switch v := fallback.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v >= 0 {
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

func firstRole(values ...interface{}) string {
	for _, value := range values {
		switch v := value.(type) {
		case string:
			if role := strings.ToLower(strings.TrimSpace(v)); role != "" {
				return role
			}
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					if role := strings.ToLower(strings.TrimSpace(s)); role != "" {
						return role
					}
				}
			}
		}
	}
	return ""
}
