package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKafkaPublisher_DisabledOnlyLogs(t *testing.T) {
	p := NewKafkaPublisher("localhost:9092", false, zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), Event{Type: OfferMade, AggregateID: "pedri"}))
	assert.NoError(t, p.Close())

	p = NewKafkaPublisher("", true, zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), Event{Type: OfferMade, AggregateID: "pedri"}))
}

func TestRecorder_OfType(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, r.Publish(ctx, Event{Type: ListingCreated, AggregateID: "a", OccurredAt: now}))
	require.NoError(t, r.Publish(ctx, Event{Type: OfferMade, AggregateID: "a", OccurredAt: now}))
	require.NoError(t, r.Publish(ctx, Event{Type: OfferMade, AggregateID: "b", OccurredAt: now}))

	assert.Len(t, r.Events(), 3)
	made := r.OfType(OfferMade)
	require.Len(t, made, 2)
	assert.Equal(t, "b", made[1].AggregateID)
	assert.Empty(t, r.OfType(JornadaSaved))
}
