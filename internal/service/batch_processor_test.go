package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-grader/internal/dto"
)

type countingOrchestrator struct {
	mu       sync.Mutex
	seen     []dto.ProcessingRequest
	inFlight int32
	peak     int32
}

func (c *countingOrchestrator) Process(_ context.Context, req dto.ProcessingRequest) dto.ProcessingResponse {
	current := atomic.AddInt32(&c.inFlight, 1)
	for {
		peak := atomic.LoadInt32(&c.peak)
		if current <= peak || atomic.CompareAndSwapInt32(&c.peak, peak, current) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	atomic.AddInt32(&c.inFlight, -1)

	c.mu.Lock()
	c.seen = append(c.seen, req)
	c.mu.Unlock()

	if req.SubmissionID == "bad" {
		return dto.ProcessingResponse{Success: false, Error: "submission not found"}
	}
	return dto.ProcessingResponse{Success: true, ResultID: "result-" + req.SubmissionID}
}

func TestBatchProcessorAggregatesOutcomes(t *testing.T) {
	orchestrator := &countingOrchestrator{}
	processor := NewBatchProcessor(orchestrator, 2, testLogger())

	resp := processor.ProcessBatch(context.Background(), "teacher-1", dto.BatchProcessRequest{
		GuideID:       "guide-1",
		SubmissionIDs: []string{"a", "b", "bad", "a", "c", ""},
		Options:       map[string]interface{}{dto.OptionUseCache: false},
	})

	require.Equal(t, "guide-1", resp.GuideID)
	require.Equal(t, 4, resp.Total)
	require.Equal(t, 3, resp.Succeeded)
	require.Equal(t, 1, resp.Failed)
	require.Equal(t, "result-a", resp.Results["a"].ResultID)
	require.False(t, resp.Results["bad"].Success)
	require.LessOrEqual(t, atomic.LoadInt32(&orchestrator.peak), int32(2))

	for _, req := range orchestrator.seen {
		require.Equal(t, "teacher-1", req.UserID)
		require.False(t, req.UseCache())
	}
}
