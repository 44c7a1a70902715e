package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-grader/internal/middleware"
	"github.com/noah-isme/gema-exam-grader/internal/service"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if id := middleware.GetRequestID(c); id != "" {
			logger = base.With().Str("request_id", id).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// statusForErrorKind maps a pipeline error kind to its HTTP status.
func statusForErrorKind(kind string) int {
	switch kind {
	case service.ErrorKindValidation:
		return fiber.StatusBadRequest
	case service.ErrorKindNotFound:
		return fiber.StatusNotFound
	case service.ErrorKindAlreadyProcessing:
		return fiber.StatusConflict
	case service.ErrorKindExternalService, service.ErrorKindParse:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
