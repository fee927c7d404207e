package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Type string

const (
	ListingCreated   Type = "listing.created"
	ListingCancelled Type = "listing.cancelled"
	OfferMade        Type = "offer.made"
	OfferAccepted    Type = "offer.accepted"
	PlayerAdded      Type = "player.added"
	PlayerRemoved    Type = "player.removed"
	JornadaSaved     Type = "jornada.saved"
	PaymentUpdated   Type = "payment.updated"
)

// Event is a committed league change, published after the write succeeds.
type Event struct {
	Type        Type      `json:"event_type"`
	AggregateID string    `json:"aggregate_id"`
	ManagerID   string    `json:"manager_id,omitempty"`
	Payload     any       `json:"payload"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// KafkaPublisher writes each event to the topic "mercato.<type>". With no
// brokers or when disabled it only logs.
type KafkaPublisher struct {
	writer  *kafka.Writer
	logger  *zap.Logger
	enabled bool
}

func NewKafkaPublisher(brokers string, enabled bool, logger *zap.Logger) *KafkaPublisher {
	if !enabled || brokers == "" {
		logger.Info("kafka publisher disabled")
		return &KafkaPublisher{logger: logger}
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	logger.Info("kafka publisher initialized", zap.String("brokers", brokers))
	return &KafkaPublisher{writer: w, logger: logger, enabled: true}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if !p.enabled {
		p.logger.Debug("event", zap.String("type", string(e.Type)), zap.String("aggregate_id", e.AggregateID))
		return nil
	}

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: "mercato." + string(e.Type),
		Key:   []byte(e.AggregateID),
		Value: value,
	})
}

func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
