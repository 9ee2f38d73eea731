//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaj441/aaronos-core/internal/domain"
	"github.com/aaj441/aaronos-core/internal/events"
)

func TestPublishWorkEvent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTopic(t, events.Topic)

	publisher := events.NewKafkaPublisher(testKafkaBrokers)
	defer publisher.Close()

	ev := events.WorkEvent{
		WorkID:     "itest-work-ev-1",
		Kind:       domain.KindResearch,
		OwnerID:    "owner-ev",
		Status:     domain.WorkCompleted,
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, publisher.PublishWorkEvent(ctx, ev))

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  testKafkaBrokers,
		Topic:    events.Topic,
		GroupID:  "itest-consumer",
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(ev.WorkID), msg.Key)

	var got events.WorkEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, ev.WorkID, got.WorkID)
	assert.Equal(t, domain.WorkCompleted, got.Status)
	assert.Equal(t, domain.KindResearch, got.Kind)
}
