package service

import (
	"errors"

	"github.com/noah-isme/gema-exam-grader/pkg/ai"
	"github.com/noah-isme/gema-exam-grader/pkg/ocr"
)

var (
	// ErrProcessingValidation indicates a malformed processing request or guide.
	ErrProcessingValidation = errors.New("invalid processing request")
	// ErrGuideNotFound indicates the marking guide does not exist.
	ErrGuideNotFound = errors.New("marking guide not found")
	// ErrSubmissionNotFound indicates the submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrAlreadyProcessing indicates another run holds the submission.
	ErrAlreadyProcessing = errors.New("submission is already being processed")
	ErrTextExtraction    = errors.New("failed to extract text")
	ErrAnswerMapping     = errors.New("failed to map answers")
	ErrGrading           = errors.New("failed to grade submission")
	ErrPersistence       = errors.New("failed to persist grading results")
	// ErrUnknownGradedQuestion indicates the grader returned an id that was never mapped.
	ErrUnknownGradedQuestion = errors.New("graded question id not present in mappings")
)

// Error kinds reported in ProcessingResponse metadata.
const (
	ErrorKindValidation        = "validation"
	ErrorKindNotFound          = "not_found"
	ErrorKindAlreadyProcessing = "already_processing"
	ErrorKindExternalService   = "external_service"
	ErrorKindParse             = "parse"
	ErrorKindPersistence       = "persistence"
	ErrorKindInternal          = "internal"
)

// ErrorKind classifies a pipeline error.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProcessingValidation):
		return ErrorKindValidation
	case errors.Is(err, ErrGuideNotFound), errors.Is(err, ErrSubmissionNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrAlreadyProcessing):
		return ErrorKindAlreadyProcessing
	case errors.Is(err, ErrPersistence):
		return ErrorKindPersistence
	case errors.Is(err, ai.ErrNoJSONObject), errors.Is(err, ai.ErrResponseSchema), errors.Is(err, ErrUnknownGradedQuestion):
		return ErrorKindParse
	case errors.Is(err, ocr.ErrUnsupportedMedia):
		return ErrorKindValidation
	case errors.Is(err, ErrTextExtraction), errors.Is(err, ErrAnswerMapping), errors.Is(err, ErrGrading):
		return ErrorKindExternalService
	default:
		return ErrorKindInternal
	}
}
