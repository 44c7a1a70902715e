package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Processing event types.
const (
	EventSubmissionProcessed = "submission.processed"
	EventSubmissionFailed    = "submission.processing_failed"
)

// ProcessingEvent announces the end of a pipeline run.
type ProcessingEvent struct {
	Source         string    `json:"source"`
	Type           string    `json:"type"`
	SubmissionID   string    `json:"submission_id"`
	GuideID        string    `json:"guide_id"`
	UserID         string    `json:"user_id"`
	ResultID       string    `json:"result_id,omitempty"`
	Score          *float64  `json:"score,omitempty"`
	MaxScore       *float64  `json:"max_score,omitempty"`
	Percentage     *float64  `json:"percentage,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	ProcessingTime float64   `json:"processing_time"`
	RequestID      string    `json:"request_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// EventPublisher fans processing events out to subscribers of other services.
type EventPublisher interface {
	Publish(ctx context.Context, event ProcessingEvent) error
}

type processingEventPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
}

// NewEventPublisher publishes to Redis pub/sub and NATS when configured.
func NewEventPublisher(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) EventPublisher {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":processing"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".processing"
	}

	return &processingEventPublisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "processing_events").Logger(),
	}
}

func (p *processingEventPublisher) Publish(ctx context.Context, event ProcessingEvent) error {
	if event.Source == "" {
		event.Source = p.nodeID
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var errs []error
	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
