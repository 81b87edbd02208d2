package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"directory-sync/backend/internal/telemetry/domain"
)

type fakeWriter struct {
	msgs     []kafka.Message
	err      error
	closed   int
	deadline bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, f.deadline = ctx.Deadline()
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed++
	return nil
}

func TestNewKafkaProducer_Disabled(t *testing.T) {
	if p := NewKafkaProducer(nil, "topic"); p != nil {
		t.Error("expected nil producer without brokers")
	}
	if p := NewKafkaProducer([]string{"localhost:9092"}, ""); p != nil {
		t.Error("expected nil producer without topic")
	}
}

func TestNewKafkaProducer_Configured(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"}, "directory-sync-events")
	if p == nil {
		t.Fatal("expected producer")
	}
	if p.Topic() != "directory-sync-events" {
		t.Errorf("Topic = %q", p.Topic())
	}
	// Writer connects lazily; closing without writes must succeed.
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestEmit_KeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w, topic: "t"}
	event := &domain.SyncEvent{
		ID:         "evt-9",
		EventType:  domain.EventSyncCompleted,
		Source:     domain.SourceDirectorySync,
		Success:    true,
		UsersCount: 2,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := p.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "evt-9" {
		t.Errorf("key = %q, want evt-9", w.msgs[0].Key)
	}
	var got domain.SyncEvent
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.EventType != domain.EventSyncCompleted || got.UsersCount != 2 || !got.CreatedAt.Equal(event.CreatedAt) {
		t.Errorf("payload = %+v", got)
	}
	if !w.deadline {
		t.Error("write context should carry a deadline")
	}
}

func TestEmit_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := &KafkaProducer{writer: w, topic: "t"}
	if err := p.Emit(context.Background(), &domain.SyncEvent{ID: "x"}); err == nil {
		t.Error("expected write error")
	}
}

func TestEmit_NilSafe(t *testing.T) {
	var p *KafkaProducer
	if err := p.Emit(context.Background(), &domain.SyncEvent{}); err != nil {
		t.Errorf("nil producer Emit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil producer Close: %v", err)
	}
	w := &fakeWriter{}
	p = &KafkaProducer{writer: w}
	if err := p.Emit(context.Background(), nil); err != nil {
		t.Errorf("nil event: %v", err)
	}
	if len(w.msgs) != 0 {
		t.Error("nil event should not be written")
	}
}
