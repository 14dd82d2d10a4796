package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w)

	evt := New(VisitCheckedIn, "entry-1", map[string]interface{}{"position": 3})
	if err := p.Publish(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "entry-1" {
		t.Errorf("expected key entry-1, got %q", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != VisitCheckedIn {
		t.Errorf("expected event_type header, got %+v", msg.Headers)
	}

	var decoded struct {
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if decoded.Type != VisitCheckedIn || decoded.Data["position"] != float64(3) {
		t.Errorf("unexpected payload %+v", decoded)
	}

	p.Close()
	if !w.closed {
		t.Error("expected writer closed")
	}
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := NewKafkaPublisherWithWriter(&fakeWriter{err: errors.New("broker down")})
	if err := p.Publish(context.Background(), New(VisitNoShow, "e", nil)); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmit_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder()
	rec.Err = errors.New("broker down")

	Emit(context.Background(), rec, zerolog.New(&buf), New(VisitCompleted, "e", nil))

	if !strings.Contains(buf.String(), "event publish failed") {
		t.Errorf("expected failure to be logged, got %q", buf.String())
	}
}

func TestEmit_NilPublisher(t *testing.T) {
	Emit(context.Background(), nil, zerolog.Nop(), New(VisitCompleted, "e", nil))
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	rec.Publish(context.Background(), New(SeriesGenerated, "s", nil), New(RemindersScheduled, "a", nil))

	types := rec.Types()
	if len(types) != 2 || types[0] != SeriesGenerated || types[1] != RemindersScheduled {
		t.Errorf("unexpected types %v", types)
	}
	if len(rec.Events()) != 2 {
		t.Errorf("expected 2 events")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(context.Background(), New(VisitCheckedIn, "x", nil)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFanout(t *testing.T) {
	ok := NewRecorder()
	failing := NewRecorder()
	failing.Err = errors.New("broker down")
	w := &fakeWriter{}
	f := Fanout{failing, ok, NewKafkaPublisherWithWriter(w)}

	err := f.Publish(context.Background(), New(VisitNoShow, "q", nil))
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Errorf("expected joined error, got %v", err)
	}
	if len(ok.Types()) != 1 || len(w.msgs) != 1 {
		t.Error("expected healthy sinks to receive the event")
	}

	if err := f.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
	if !w.closed {
		t.Error("expected kafka writer to be closed")
	}
}
