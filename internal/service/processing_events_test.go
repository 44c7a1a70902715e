package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestEventPublisherPublishesToRedis(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	subscription := client.Subscribe(ctx, "grader:events:processing")
	t.Cleanup(func() { _ = subscription.Close() })
	_, err := subscription.Receive(ctx)
	require.NoError(t, err)

	score := 18.0
	publisher := NewEventPublisher(client, "grader:events", nil, testLogger())
	require.NoError(t, publisher.Publish(ctx, ProcessingEvent{
		Type:         EventSubmissionProcessed,
		SubmissionID: "sub-1",
		GuideID:      "guide-1",
		Score:        &score,
	}))

	select {
	case msg := <-subscription.Channel():
		var event ProcessingEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		require.Equal(t, EventSubmissionProcessed, event.Type)
		require.Equal(t, "sub-1", event.SubmissionID)
		require.Equal(t, 18.0, *event.Score)
		require.NotEmpty(t, event.Source)
		require.False(t, event.OccurredAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("processing event was not delivered")
	}
}

func TestEventPublisherWithoutTransportsIsNoop(t *testing.T) {
	publisher := NewEventPublisher(nil, "", nil, testLogger())
	require.NoError(t, publisher.Publish(context.Background(), ProcessingEvent{Type: EventSubmissionFailed}))
}
