package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-exam-grader/internal/dto"
)

// BatchProcessor grades many submissions against one guide concurrently.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, userID string, req dto.BatchProcessRequest) dto.BatchProcessResponse
}

type batchProcessor struct {
	orchestrator ProcessingOrchestrator
	concurrency  int
	logger       zerolog.Logger
}

// NewBatchProcessor constructs a batch processor bounded by concurrency.
func NewBatchProcessor(orchestrator ProcessingOrchestrator, concurrency int, logger zerolog.Logger) BatchProcessor {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &batchProcessor{
		orchestrator: orchestrator,
		concurrency:  concurrency,
		logger:       logger.With().Str("component", "batch_processor").Logger(),
	}
}

func (b *batchProcessor) ProcessBatch(ctx context.Context, userID string, req dto.BatchProcessRequest) dto.BatchProcessResponse {
	ids := uniqueIDs(req.SubmissionIDs)
	response := dto.BatchProcessResponse{
		GuideID: req.GuideID,
		Total:   len(ids),
		Results: make(map[string]dto.ProcessingResponse, len(ids)),
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(b.concurrency)

	for _, submissionID := range ids {
		submissionID := submissionID
		group.Go(func() error {
			result := b.orchestrator.Process(groupCtx, dto.ProcessingRequest{
				GuideID:      req.GuideID,
				SubmissionID: submissionID,
				UserID:       userID,
				Options:      req.Options,
			})

			mu.Lock()
			response.Results[submissionID] = result
			if result.Success {
				response.Succeeded++
			} else {
				response.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	b.logger.Info().
		Str("guide_id", req.GuideID).
		Int("total", response.Total).
		Int("succeeded", response.Succeeded).
		Int("failed", response.Failed).
		Msg("batch processed")
	return response
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
