package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-grader/internal/models"
	"github.com/noah-isme/gema-exam-grader/internal/service"
	"github.com/noah-isme/gema-exam-grader/internal/utils"
)

// SeedTokenHeader carries the shared secret checked by the seed service.
const SeedTokenHeader = "X-Seed-Token"

// SeedHandler loads marking guides and submissions for local runs and demos.
type SeedHandler struct {
	service service.SeedService
	logger  zerolog.Logger
}

// NewSeedHandler constructs a seed handler.
func NewSeedHandler(service service.SeedService, logger zerolog.Logger) *SeedHandler {
	return &SeedHandler{
		service: service,
		logger:  logger.With().Str("component", "seed_handler").Logger(),
	}
}

// Register wires seed routes.
func (h *SeedHandler) Register(router fiber.Router) {
	router.Post("/guides", h.seedGuides)
	router.Post("/submissions", h.seedSubmissions)
	router.Post("/fixtures", h.seedFixtures)
}

type seedRequest struct {
	Guides      []models.MarkingGuide `json:"guides"`
	Submissions []models.Submission   `json:"submissions"`
}

type seedResponse struct {
	Guides      int64 `json:"guides"`
	Submissions int64 `json:"submissions"`
}

func (h *SeedHandler) seedGuides(c *fiber.Ctx) error {
	var payload seedRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if len(payload.Guides) == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "guides must not be empty")
	}

	affected, err := h.service.SeedGuides(c.UserContext(), c.Get(SeedTokenHeader), payload.Guides)
	if err != nil {
		return h.seedError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "marking guides seeded", seedResponse{Guides: affected})
}

func (h *SeedHandler) seedSubmissions(c *fiber.Ctx) error {
	var payload seedRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if len(payload.Submissions) == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "submissions must not be empty")
	}

	affected, err := h.service.SeedSubmissions(c.UserContext(), c.Get(SeedTokenHeader), payload.Submissions)
	if err != nil {
		return h.seedError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submissions seeded", seedResponse{Submissions: affected})
}

// seedFixtures loads guides before submissions so a failed guide batch leaves
// no orphaned submissions behind.
func (h *SeedHandler) seedFixtures(c *fiber.Ctx) error {
	var payload seedRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if len(payload.Guides) == 0 && len(payload.Submissions) == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "fixtures must not be empty")
	}

	token := c.Get(SeedTokenHeader)
	var result seedResponse
	var err error
	if len(payload.Guides) > 0 {
		if result.Guides, err = h.service.SeedGuides(c.UserContext(), token, payload.Guides); err != nil {
			return h.seedError(c, err)
		}
	}
	if len(payload.Submissions) > 0 {
		if result.Submissions, err = h.service.SeedSubmissions(c.UserContext(), token, payload.Submissions); err != nil {
			return h.seedError(c, err)
		}
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "fixtures seeded", result)
}

func (h *SeedHandler) seedError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSeedDisabled):
		return utils.SendError(c, fiber.StatusForbidden, "seeding disabled")
	case errors.Is(err, service.ErrSeedUnauthorized):
		return utils.SendError(c, fiber.StatusForbidden, "invalid seed token")
	case errors.Is(err, service.ErrSeedInvalid):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("seed operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "seed operation failed")
	}
}
