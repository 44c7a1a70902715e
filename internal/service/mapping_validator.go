package service

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-grader/internal/models"
	"github.com/noah-isme/gema-exam-grader/internal/repository"
)

// Reasons recorded for dropped mappings.
const (
	DropReasonEmptyAnswer  = "empty_answer"
	DropReasonInvalidScore = "invalid_max_score"
	DropReasonDuplicate    = "duplicate_question"
)

var noAnswerMarkers = map[string]struct{}{
	"no answer":          {},
	"no answer provided": {},
	"not answered":       {},
	"unanswered":         {},
	"n/a":                {},
	"na":                 {},
	"none":               {},
	"-":                  {},
}

// DroppedMapping records why a mapping was discarded.
type DroppedMapping struct {
	QuestionID string `json:"question_id"`
	Reason     string `json:"reason"`
}

// ValidationReport is the outcome of validating one mapping set.
type ValidationReport struct {
	Valid   []models.Mapping
	Dropped []DroppedMapping
	Count   int
}

// MappingValidator filters mapping sets and removes stored duplicates.
type MappingValidator interface {
	Validate(mappings []models.Mapping) ValidationReport
	CleanupPersistedDuplicates(ctx context.Context, submissionID, guideID string) (int, error)
}

type mappingValidator struct {
	repo   repository.MappingRepository
	logger zerolog.Logger
}

// NewMappingValidator constructs the validator.
func NewMappingValidator(repo repository.MappingRepository, logger zerolog.Logger) MappingValidator {
	return &mappingValidator{
		repo:   repo,
		logger: logger.With().Str("component", "mapping_validator").Logger(),
	}
}

// Validate drops empty answers and non-positive max scores before removing
// duplicate question ids, so the first usable mapping per question wins.
// Ids are compared by their canonical key, so "Q7" and "7" collide.
func (v *mappingValidator) Validate(mappings []models.Mapping) ValidationReport {
	report := ValidationReport{Valid: make([]models.Mapping, 0, len(mappings))}
	seen := make(map[string]struct{}, len(mappings))

	for _, mapping := range mappings {
		switch {
		case isEmptyAnswer(mapping.StudentAnswer):
			report.Dropped = append(report.Dropped, DroppedMapping{QuestionID: mapping.QuestionID, Reason: DropReasonEmptyAnswer})
			continue
		case mapping.MaxScore <= 0:
			report.Dropped = append(report.Dropped, DroppedMapping{QuestionID: mapping.QuestionID, Reason: DropReasonInvalidScore})
			continue
		}

		key := questionKey(mapping.QuestionID)
		if _, dup := seen[key]; dup {
			report.Dropped = append(report.Dropped, DroppedMapping{QuestionID: mapping.QuestionID, Reason: DropReasonDuplicate})
			continue
		}
		seen[key] = struct{}{}
		report.Valid = append(report.Valid, mapping)
	}

	report.Count = len(report.Valid)
	return report
}

func (v *mappingValidator) CleanupPersistedDuplicates(ctx context.Context, submissionID, guideID string) (int, error) {
	stored, err := v.repo.ListByScope(ctx, submissionID, guideID)
	if err != nil {
		return 0, err
	}

	groups := make(map[string][]models.Mapping)
	for _, mapping := range stored {
		key := questionKey(mapping.QuestionID)
		groups[key] = append(groups[key], mapping)
	}

	var stale []string
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return betterMapping(group[i], group[j])
		})
		for _, loser := range group[1:] {
			stale = append(stale, loser.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	removed, err := v.repo.DeleteByIDs(ctx, stale)
	if err != nil {
		return 0, err
	}
	v.logger.Info().
		Str("submission_id", submissionID).
		Str("guide_id", guideID).
		Int64("removed", removed).
		Msg("removed duplicate stored mappings")
	return int(removed), nil
}

// betterMapping orders by non-empty answer, then match score, then recency.
func betterMapping(a, b models.Mapping) bool {
	aHas, bHas := !isEmptyAnswer(a.StudentAnswer), !isEmptyAnswer(b.StudentAnswer)
	if aHas != bHas {
		return aHas
	}
	if a.MatchScore != b.MatchScore {
		return a.MatchScore > b.MatchScore
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func isEmptyAnswer(answer string) bool {
	normalized := strings.ToLower(strings.TrimSpace(answer))
	normalized = strings.TrimRight(normalized, ".!")
	if normalized == "" {
		return true
	}
	_, marker := noAnswerMarkers[normalized]
	return marker
}
