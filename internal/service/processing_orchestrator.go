package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-grader/internal/dto"
	"github.com/noah-isme/gema-exam-grader/internal/models"
	"github.com/noah-isme/gema-exam-grader/internal/observability"
	"github.com/noah-isme/gema-exam-grader/pkg/ocr"
)

// Pipeline stage names used for metrics and spans.
const (
	StageExtract  = "extract_text"
	StageMap      = "map_answers"
	StageValidate = "validate_mappings"
	StageGrade    = "grade"
	StagePersist  = "persist"
)

const (
	defaultMaxQuestions  = 5
	maxMappingThreshold  = 3
	defaultStatusTimeout = 10 * time.Second
)

// ProcessingOrchestrator runs the grading pipeline for one submission and guide.
type ProcessingOrchestrator interface {
	Process(ctx context.Context, req dto.ProcessingRequest) dto.ProcessingResponse
}

// ProcessingRepositories groups the stores the pipeline reads and writes.
type ProcessingRepositories struct {
	Guides      GuideReader
	Submissions SubmissionStore
	Mappings    MappingCleaner
}

// GuideReader loads marking guides.
type GuideReader interface {
	GetByID(ctx context.Context, id string) (models.MarkingGuide, error)
}

// SubmissionStore is the subset of the submission repository used by the pipeline.
type SubmissionStore interface {
	GetByID(ctx context.Context, id string) (models.Submission, error)
	SaveExtractedText(ctx context.Context, id, text string, confidence float64) error
	TryMarkProcessing(ctx context.Context, id string) (bool, error)
	FinalizeProcessing(ctx context.Context, id, status, processingError string) error
}

// MappingCleaner clears stored mappings before regeneration.
type MappingCleaner interface {
	DeleteByScope(ctx context.Context, submissionID, guideID string) (int64, error)
}

// ProcessingComponents are the pipeline stages. Nil stages are resolved from
// the service registry on every run so restarted services are picked up.
type ProcessingComponents struct {
	Extractor ocr.TextExtractor
	Mapper    AnswerMapper
	Validator MappingValidator
	Grader    GradingEngine
	Persister ResultPersister
	Registry  *ServiceRegistry
}

// OrchestratorConfig tunes the pipeline.
type OrchestratorConfig struct {
	EnforceOwnership bool
}

type processingOrchestrator struct {
	repos      ProcessingRepositories
	components ProcessingComponents
	locks      LockManager
	activity   ActivityRecorder
	events     EventPublisher
	validator  *validator.Validate
	config     OrchestratorConfig
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewProcessingOrchestrator wires the pipeline. activity and events may be nil.
func NewProcessingOrchestrator(
	repos ProcessingRepositories,
	components ProcessingComponents,
	locks LockManager,
	activity ActivityRecorder,
	events EventPublisher,
	validate *validator.Validate,
	config OrchestratorConfig,
	logger zerolog.Logger,
) ProcessingOrchestrator {
	if locks == nil {
		locks = NewMemoryLockManager()
	}
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &processingOrchestrator{
		repos:      repos,
		components: components,
		locks:      locks,
		activity:   activity,
		events:     events,
		validator:  validate,
		config:     config,
		logger:     logger.With().Str("component", "processing_orchestrator").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/gema-exam-grader/internal/service/processing"),
		now:        time.Now,
	}
}

func (o *processingOrchestrator) Process(ctx context.Context, req dto.ProcessingRequest) dto.ProcessingResponse {
	start := o.now()
	metadata := map[string]interface{}{
		"submission_id": req.SubmissionID,
		"guide_id":      req.GuideID,
	}

	if err := o.validator.Struct(req); err != nil {
		observability.ProcessingRuns().WithLabelValues("rejected").Inc()
		return o.failure(start, fmt.Errorf("%w: %v", ErrProcessingValidation, err), metadata)
	}

	key := req.Key()
	metadata["processing_key"] = key
	logger := o.logger.With().
		Str("submission_id", req.SubmissionID).
		Str("guide_id", req.GuideID).
		Str("processing_key", key).
		Str("request_id", observability.RequestIDFromContext(ctx)).
		Logger()

	if err := o.acquire(ctx, req, key); err != nil {
		observability.ProcessingRuns().WithLabelValues("rejected").Inc()
		logger.Info().Err(err).Msg("processing request rejected")
		return o.failure(start, err, metadata)
	}

	ctx, span := o.tracer.Start(ctx, "grading.process", trace.WithAttributes(
		attribute.String("grading.submission_id", req.SubmissionID),
		attribute.String("grading.guide_id", req.GuideID),
	))
	defer span.End()

	response, err := o.runSafely(ctx, req, metadata, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorKind(err))
		response = o.failure(start, err, metadata)
	} else {
		response.ProcessingTime = o.now().Sub(start).Seconds()
		response.Metadata = metadata
	}

	o.finalize(ctx, req, key, response, logger)
	return response
}

// acquire takes the in-process lock and then the persisted processing flag.
func (o *processingOrchestrator) acquire(ctx context.Context, req dto.ProcessingRequest, key string) error {
	acquired, err := o.locks.TryAcquire(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire processing lock: %w", err)
	}
	if !acquired {
		observability.LockContention().WithLabelValues("lock_manager").Inc()
		return ErrAlreadyProcessing
	}

	claimed, err := o.repos.Submissions.TryMarkProcessing(ctx, req.SubmissionID)
	if err == nil && claimed {
		return nil
	}

	o.release(ctx, key)
	if err != nil {
		return fmt.Errorf("mark submission processing: %w", err)
	}
	if _, lookupErr := o.repos.Submissions.GetByID(ctx, req.SubmissionID); errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		return ErrSubmissionNotFound
	}
	observability.LockContention().WithLabelValues("database").Inc()
	return ErrAlreadyProcessing
}

func (o *processingOrchestrator) release(ctx context.Context, key string) {
	if err := o.locks.Release(context.WithoutCancel(ctx), key); err != nil {
		o.logger.Warn().Err(err).Str("processing_key", key).Msg("failed to release processing lock")
	}
}

func (o *processingOrchestrator) runSafely(ctx context.Context, req dto.ProcessingRequest, metadata map[string]interface{}, logger zerolog.Logger) (response dto.ProcessingResponse, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error().Interface("panic", recovered).Msg("processing pipeline panicked")
			err = fmt.Errorf("processing pipeline panicked: %v", recovered)
		}
	}()
	return o.run(ctx, req, metadata, logger)
}

func (o *processingOrchestrator) run(ctx context.Context, req dto.ProcessingRequest, metadata map[string]interface{}, logger zerolog.Logger) (dto.ProcessingResponse, error) {
	guide, questions, submission, err := o.loadInputs(ctx, req)
	if err != nil {
		return dto.ProcessingResponse{}, err
	}

	var text string
	err = o.stage(ctx, StageExtract, func(ctx context.Context) error {
		text, err = o.extractText(ctx, req, submission, metadata)
		return err
	})
	if err != nil {
		return dto.ProcessingResponse{}, err
	}

	mapper, err := o.mapper()
	if err != nil {
		return dto.ProcessingResponse{}, err
	}
	mappingReq := MappingRequest{
		SubmissionID:   req.SubmissionID,
		GuideID:        req.GuideID,
		Questions:      questions,
		GuideText:      guide.ContentText,
		SubmissionText: text,
		UseCache:       req.UseCache(),
		Method:         models.MappingMethodLLM,
	}

	var mapped []models.Mapping
	err = o.stage(ctx, StageMap, func(ctx context.Context) error {
		mapped, err = mapper.Map(ctx, mappingReq)
		return err
	})
	if err != nil {
		return dto.ProcessingResponse{}, err
	}

	validatorStage, err := o.mappingValidator()
	if err != nil {
		return dto.ProcessingResponse{}, err
	}
	var report ValidationReport
	_ = o.stage(ctx, StageValidate, func(ctx context.Context) error {
		report = o.validateWithRegeneration(ctx, mapper, validatorStage, mappingReq, mapped, guide, metadata, logger)
		return nil
	})

	grader, err := o.grader()
	if err != nil {
		return dto.ProcessingResponse{}, err
	}
	var outcome GradingOutcome
	err = o.stage(ctx, StageGrade, func(ctx context.Context) error {
		outcome, err = grader.Grade(ctx, GradingRequest{
			SubmissionID: req.SubmissionID,
			GuideID:      req.GuideID,
			GuideText:    guide.ContentText,
			Mappings:     report.Valid,
			UseCache:     req.UseCache(),
		})
		return err
	})
	if err != nil {
		return dto.ProcessingResponse{}, err
	}
	metadata["grading_method"] = outcome.Method

	persister, err := o.persister()
	if err != nil {
		return dto.ProcessingResponse{}, err
	}
	var resultID string
	err = o.stage(ctx, StagePersist, func(ctx context.Context) error {
		resultID, err = persister.Persist(ctx, PersistInput{
			SubmissionID: req.SubmissionID,
			GuideID:      req.GuideID,
			Mappings:     report.Valid,
			Outcome:      outcome,
		})
		return err
	})
	if err != nil {
		return dto.ProcessingResponse{}, err
	}

	removed, cleanupErr := validatorStage.CleanupPersistedDuplicates(ctx, req.SubmissionID, req.GuideID)
	if cleanupErr != nil {
		logger.Warn().Err(cleanupErr).Msg("post-persist duplicate cleanup failed")
	}
	metadata["duplicates_removed"] = removed

	score, maxScore, percentage := outcome.Score, outcome.MaxScore, outcome.Percentage
	return dto.ProcessingResponse{
		Success:    true,
		ResultID:   resultID,
		Score:      &score,
		MaxScore:   &maxScore,
		Percentage: &percentage,
		Feedback:   outcome.Feedback,
		Mappings:   dto.NewMappingResponseSlice(report.Valid),
	}, nil
}

func (o *processingOrchestrator) loadInputs(ctx context.Context, req dto.ProcessingRequest) (models.MarkingGuide, []models.QuestionSpec, models.Submission, error) {
	guide, err := o.repos.Guides.GetByID(ctx, req.GuideID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.MarkingGuide{}, nil, models.Submission{}, ErrGuideNotFound
		}
		return models.MarkingGuide{}, nil, models.Submission{}, fmt.Errorf("load marking guide: %w", err)
	}
	if o.config.EnforceOwnership && guide.UserID != "" && guide.UserID != req.UserID {
		return models.MarkingGuide{}, nil, models.Submission{}, ErrGuideNotFound
	}
	if strings.TrimSpace(guide.ID) == "" || strings.TrimSpace(guide.ContentText) == "" {
		return models.MarkingGuide{}, nil, models.Submission{}, fmt.Errorf("%w: marking guide has no content", ErrProcessingValidation)
	}
	questions, err := guide.QuestionSpecs()
	if err != nil {
		return models.MarkingGuide{}, nil, models.Submission{}, fmt.Errorf("%w: %v", ErrProcessingValidation, err)
	}

	submission, err := o.repos.Submissions.GetByID(ctx, req.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.MarkingGuide{}, nil, models.Submission{}, ErrSubmissionNotFound
		}
		return models.MarkingGuide{}, nil, models.Submission{}, fmt.Errorf("load submission: %w", err)
	}
	if o.config.EnforceOwnership && submission.UserID != "" && submission.UserID != req.UserID {
		return models.MarkingGuide{}, nil, models.Submission{}, ErrSubmissionNotFound
	}
	if strings.TrimSpace(submission.ID) == "" || strings.TrimSpace(submission.Filename) == "" {
		return models.MarkingGuide{}, nil, models.Submission{}, fmt.Errorf("%w: submission is missing its filename", ErrProcessingValidation)
	}
	if !submission.HasText() && strings.TrimSpace(submission.FilePath) == "" {
		return models.MarkingGuide{}, nil, models.Submission{}, fmt.Errorf("%w: submission has neither text nor a file", ErrProcessingValidation)
	}

	return guide, questions, submission, nil
}

func (o *processingOrchestrator) extractText(ctx context.Context, req dto.ProcessingRequest, submission models.Submission, metadata map[string]interface{}) (string, error) {
	if submission.HasText() && !req.ForceOCR() {
		metadata["text_source"] = "stored"
		return submission.ContentText, nil
	}
	if strings.TrimSpace(submission.FilePath) == "" {
		return "", fmt.Errorf("%w: submission has no file to read", ErrTextExtraction)
	}

	extractor, err := o.extractor()
	if err != nil {
		return "", err
	}
	result, err := extractor.Extract(ctx, submission.FilePath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTextExtraction, err)
	}
	text := strings.TrimSpace(result.Text)
	if !result.Success || text == "" {
		return "", fmt.Errorf("%w: no text found in %s", ErrTextExtraction, submission.Filename)
	}

	metadata["text_source"] = "ocr"
	metadata["ocr_provider"] = result.Provider
	metadata["ocr_confidence"] = result.Confidence
	if err := o.repos.Submissions.SaveExtractedText(ctx, submission.ID, text, result.Confidence); err != nil {
		o.logger.Warn().Err(err).Str("submission_id", submission.ID).Msg("failed to store extracted text")
	}
	return text, nil
}

func (o *processingOrchestrator) validateWithRegeneration(
	ctx context.Context,
	mapper AnswerMapper,
	validatorStage MappingValidator,
	mappingReq MappingRequest,
	mapped []models.Mapping,
	guide models.MarkingGuide,
	metadata map[string]interface{},
	logger zerolog.Logger,
) ValidationReport {
	report := validatorStage.Validate(mapped)
	threshold := MappingThreshold(guide.MaxQuestionsToAnswer)
	metadata["valid_mappings"] = report.Count
	metadata["dropped_mappings"] = len(report.Dropped)
	if report.Count >= threshold {
		return report
	}

	logger.Warn().Int("valid", report.Count).Int("threshold", threshold).Msg("too few valid mappings, regenerating")
	metadata["regenerated"] = true
	if _, err := o.repos.Mappings.DeleteByScope(ctx, mappingReq.SubmissionID, mappingReq.GuideID); err != nil {
		logger.Warn().Err(err).Msg("failed to clear stored mappings before regeneration")
	}

	mappingReq.UseCache = false
	mappingReq.Method = models.MappingMethodLLMRegenerated
	regenerated, err := mapper.Map(ctx, mappingReq)
	if err != nil {
		observability.MappingRegenerations().WithLabelValues("error").Inc()
		logger.Warn().Err(err).Msg("mapping regeneration failed, keeping original mappings")
		return report
	}

	second := validatorStage.Validate(regenerated)
	if second.Count < report.Count {
		observability.MappingRegenerations().WithLabelValues("worse").Inc()
		logger.Warn().Int("original", report.Count).Int("regenerated", second.Count).Msg("regeneration produced fewer mappings, keeping original")
		return report
	}

	if second.Count < threshold {
		observability.MappingRegenerations().WithLabelValues("below_threshold").Inc()
		logger.Warn().Int("valid", second.Count).Int("threshold", threshold).Msg("still below mapping threshold after regeneration")
	} else {
		observability.MappingRegenerations().WithLabelValues("recovered").Inc()
	}
	metadata["valid_mappings"] = second.Count
	metadata["dropped_mappings"] = len(second.Dropped)
	return second
}

// MappingThreshold is the minimum valid mapping count before regeneration.
func MappingThreshold(maxQuestionsToAnswer *int) int {
	limit := defaultMaxQuestions
	if maxQuestionsToAnswer != nil && *maxQuestionsToAnswer > 0 {
		limit = *maxQuestionsToAnswer
	}
	if limit > maxMappingThreshold {
		return maxMappingThreshold
	}
	return limit
}

func (o *processingOrchestrator) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "grading.stage."+name)
	defer span.End()

	start := o.now()
	err := fn(ctx)
	observability.StageDuration().WithLabelValues(name).Observe(o.now().Sub(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+"_failed")
	}
	return err
}

func (o *processingOrchestrator) failure(start time.Time, err error, metadata map[string]interface{}) dto.ProcessingResponse {
	metadata["error_kind"] = ErrorKind(err)
	return dto.ProcessingResponse{
		Success:        false,
		Error:          err.Error(),
		ProcessingTime: o.now().Sub(start).Seconds(),
		Metadata:       metadata,
	}
}

func (o *processingOrchestrator) finalize(ctx context.Context, req dto.ProcessingRequest, key string, response dto.ProcessingResponse, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultStatusTimeout)
	defer cancel()
	defer o.release(ctx, key)

	status := models.ProcessingStatusCompleted
	outcome := "success"
	eventType := EventSubmissionProcessed
	if !response.Success {
		status = models.ProcessingStatusFailed
		outcome = "failure"
		eventType = EventSubmissionFailed
	}

	if err := o.repos.Submissions.FinalizeProcessing(ctx, req.SubmissionID, status, response.Error); err != nil {
		logger.Error().Err(err).Str("status", status).Msg("failed to record processing status")
	}
	observability.ProcessingRuns().WithLabelValues(outcome).Inc()

	if o.activity != nil {
		metadata := map[string]interface{}{
			"guide_id":        req.GuideID,
			"processing_time": response.ProcessingTime,
		}
		if requestID := observability.RequestIDFromContext(ctx); requestID != "" {
			metadata["request_id"] = requestID
		}
		if response.Success {
			metadata["result_id"] = response.ResultID
			metadata["percentage"] = derefFloat(response.Percentage)
			metadata["grading_method"] = response.Metadata["grading_method"]
		} else {
			metadata["error"] = response.Error
			metadata["error_kind"] = response.ErrorKind()
		}
		if _, err := o.activity.Record(ctx, ActivityEntry{
			ActorID:    req.UserID,
			Action:     eventType,
			EntityType: "submission",
			EntityID:   req.SubmissionID,
			Metadata:   metadata,
		}); err != nil {
			logger.Warn().Err(err).Msg("failed to record processing activity")
		}
	}

	if o.events != nil {
		event := ProcessingEvent{
			Type:           eventType,
			SubmissionID:   req.SubmissionID,
			GuideID:        req.GuideID,
			UserID:         req.UserID,
			ResultID:       response.ResultID,
			Score:          response.Score,
			MaxScore:       response.MaxScore,
			Percentage:     response.Percentage,
			Error:          response.Error,
			ErrorKind:      response.ErrorKind(),
			ProcessingTime: response.ProcessingTime,
			RequestID:      observability.RequestIDFromContext(ctx),
		}
		if err := o.events.Publish(ctx, event); err != nil {
			logger.Warn().Err(err).Msg("failed to publish processing event")
		}
	}

	if response.Success {
		logger.Info().
			Str("result_id", response.ResultID).
			Str("percentage", strconv.FormatFloat(derefFloat(response.Percentage), 'f', 2, 64)).
			Float64("processing_time", response.ProcessingTime).
			Msg("submission processed")
	} else {
		logger.Warn().
			Str("error_kind", response.ErrorKind()).
			Str("error", response.Error).
			Msg("submission processing failed")
	}
}

func (o *processingOrchestrator) extractor() (ocr.TextExtractor, error) {
	if o.components.Extractor != nil {
		return o.components.Extractor, nil
	}
	return resolveComponent[ocr.TextExtractor](o.components.Registry, ServiceOCR, ErrTextExtraction)
}

func (o *processingOrchestrator) mapper() (AnswerMapper, error) {
	if o.components.Mapper != nil {
		return o.components.Mapper, nil
	}
	return resolveComponent[AnswerMapper](o.components.Registry, ServiceMapping, ErrAnswerMapping)
}

func (o *processingOrchestrator) grader() (GradingEngine, error) {
	if o.components.Grader != nil {
		return o.components.Grader, nil
	}
	return resolveComponent[GradingEngine](o.components.Registry, ServiceGrading, ErrGrading)
}

func (o *processingOrchestrator) mappingValidator() (MappingValidator, error) {
	if o.components.Validator == nil {
		return nil, fmt.Errorf("%w: mapping validator not configured", ErrAnswerMapping)
	}
	return o.components.Validator, nil
}

func (o *processingOrchestrator) persister() (ResultPersister, error) {
	if o.components.Persister == nil {
		return nil, fmt.Errorf("%w: result persister not configured", ErrPersistence)
	}
	return o.components.Persister, nil
}

func resolveComponent[T any](registry *ServiceRegistry, name string, sentinel error) (T, error) {
	var zero T
	if registry == nil {
		return zero, fmt.Errorf("%w: %s service not configured", sentinel, name)
	}
	instance, ok := registry.Instance(name)
	if !ok {
		return zero, fmt.Errorf("%w: %s service unavailable", sentinel, name)
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s service has unexpected type %T", sentinel, name, instance)
	}
	return typed, nil
}

func derefFloat(value *float64) float64 {
	if value == nil {
		return 0
	}
	return *value
}
