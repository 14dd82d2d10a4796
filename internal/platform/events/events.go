// Package events publishes domain events (check-ins, stage changes, reminder
// dispatches) for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	VisitCheckedIn         = "visit.checked_in"
	VisitStageChanged      = "visit.stage_changed"
	VisitCompleted         = "visit.completed"
	VisitNoShow            = "visit.no_show"
	SeriesGenerated        = "series.generated"
	RemindersScheduled     = "reminders.scheduled"
	ReminderDispatched     = "reminder.dispatched"
	ReminderBatchCompleted = "reminder.batch_completed"
)

// Event is the envelope written to the topic. Key is the aggregate id.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

func New(eventType, key string, data interface{}) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evts ...Event) error
	Close() error
}

// Emit publishes and logs failures. Domain services call this after commit
// so that a broker outage never fails the operation itself.
func Emit(ctx context.Context, p Publisher, log zerolog.Logger, evts ...Event) {
	if p == nil || len(evts) == 0 {
		return
	}
	if err := p.Publish(ctx, evts...); err != nil {
		log.Warn().Err(err).Str("event_type", evts[0].Type).Int("count", len(evts)).Msg("event publish failed")
	}
}

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w MessageWriter
}

// NewKafkaPublisher writes to topic, hashing on the event key so events for
// one aggregate stay ordered within a partition.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evts ...Event) error {
	msgs := make([]kafka.Message, 0, len(evts))
	for _, e := range evts {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Key),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
			},
		})
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Fanout publishes to every wrapped publisher. One failing sink does not stop
// the others; their errors are joined.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evts ...Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopPublisher drops events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }
func (NopPublisher) Close() error                            { return nil }

// Recorder keeps published events in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, evts ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, evts...)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
