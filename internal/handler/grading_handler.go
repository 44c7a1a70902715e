package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-grader/internal/dto"
	"github.com/noah-isme/gema-exam-grader/internal/middleware"
	"github.com/noah-isme/gema-exam-grader/internal/service"
	"github.com/noah-isme/gema-exam-grader/internal/utils"
)

// GradingHandler exposes the grading pipeline over HTTP.
type GradingHandler struct {
	orchestrator service.ProcessingOrchestrator
	batch        service.BatchProcessor
	results      service.GradingQueryService
	activity     service.ActivityService
	validate     *validator.Validate
	logger       zerolog.Logger
}

// NewGradingHandler constructs the grading handler.
func NewGradingHandler(
	orchestrator service.ProcessingOrchestrator,
	batch service.BatchProcessor,
	results service.GradingQueryService,
	activity service.ActivityService,
	validate *validator.Validate,
	logger zerolog.Logger,
) *GradingHandler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &GradingHandler{
		orchestrator: orchestrator,
		batch:        batch,
		results:      results,
		activity:     activity,
		validate:     validate,
		logger:       logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches grading endpoints to the router group.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Post("/submissions/:id/process", h.process)
	router.Get("/submissions", h.listSubmissions)
	router.Get("/submissions/:id/results", h.result)
	router.Get("/submissions/:id/activity", h.listActivity)
	router.Post("/batch", h.processBatch)
}

func (h *GradingHandler) process(c *fiber.Ctx) error {
	submissionID := strings.TrimSpace(c.Params("id"))
	if submissionID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.ProcessSubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validate.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", err.Error())
	}

	response := h.orchestrator.Process(c.UserContext(), dto.ProcessingRequest{
		GuideID:      payload.GuideID,
		SubmissionID: submissionID,
		UserID:       middleware.UserID(c),
		Options:      payload.Options,
	})
	if !response.Success {
		status := statusForErrorKind(response.ErrorKind())
		if status >= fiber.StatusInternalServerError {
			requestLogger(h.logger, c).Error().
				Str("submission_id", submissionID).
				Str("error", response.Error).
				Msg("submission processing failed")
		}
		return utils.Fail(c, status, response.Error, response)
	}

	return utils.SendSuccess(c, "submission processed", response)
}

func (h *GradingHandler) processBatch(c *fiber.Ctx) error {
	var payload dto.BatchProcessRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validate.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", err.Error())
	}

	response := h.batch.ProcessBatch(c.UserContext(), middleware.UserID(c), payload)
	return utils.SendSuccess(c, "batch processed", response)
}

func (h *GradingHandler) result(c *fiber.Ctx) error {
	submissionID := strings.TrimSpace(c.Params("id"))
	guideID := strings.TrimSpace(c.Query("guide_id"))
	if submissionID == "" || guideID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "submission id and guide_id are required")
	}

	result, err := h.results.GetResult(c.UserContext(), submissionID, guideID, middleware.UserID(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "submission not found")
		case errors.Is(err, service.ErrResultNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "grading result not found")
		default:
			requestLogger(h.logger, c).Error().Err(err).Str("submission_id", submissionID).Msg("failed to load grading result")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to load grading result")
		}
	}

	return utils.SendSuccess(c, "grading result retrieved", result)
}

func (h *GradingHandler) listSubmissions(c *fiber.Ctx) error {
	items, err := h.results.ListSubmissions(c.UserContext(), middleware.UserID(c), c.Query("status"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatusFilter) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list submissions")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list submissions")
	}

	return utils.OK(c, items, "submissions retrieved", fiber.Map{"total": len(items)})
}

func (h *GradingHandler) listActivity(c *fiber.Ctx) error {
	submissionID := strings.TrimSpace(c.Params("id"))
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page_size")
	}

	entries, total, err := h.activity.ListForSubmission(c.UserContext(), submissionID, page, pageSize)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Str("submission_id", submissionID).Msg("failed to list activity")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list activity")
	}

	return utils.OK(c, entries, "activity retrieved", fiber.Map{"total": total, "page": page})
}
