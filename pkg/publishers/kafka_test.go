package publishers

import (
	"context"
	"errors"
	"testing"

	"github.com/samvad-hq/channel-relay/internal/logger"
	"github.com/segmentio/kafka-go"
)

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherKeysByChannel(t *testing.T) {
	w := &fakeKafkaWriter{}
	pub := &kafkaPublisher{id: "kafka", topic: "relay.events", writer: w, log: logger.NopLogger{}}

	if err := pub.Publish(context.Background(), Event{ID: "evt-4", SourceChannelID: "-1004"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "-1004" {
		t.Fatalf("Key = %s", msg.Key)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != "event_id" || string(msg.Headers[0].Value) != "evt-4" {
		t.Fatalf("Headers = %#v", msg.Headers)
	}
}

func TestKafkaPublisherErrorAndClose(t *testing.T) {
	w := &fakeKafkaWriter{err: errors.New("leader not available")}
	pub := &kafkaPublisher{id: "kafka", topic: "relay.events", writer: w, log: logger.NopLogger{}}

	if err := pub.Publish(context.Background(), Event{ID: "evt-5"}); err == nil {
		t.Fatalf("expected write error")
	}
	if err := NewFanout([]Publisher{pub}).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !w.closed {
		t.Fatalf("writer was not closed")
	}
}

func TestNewKafkaPublisherRequiresConfig(t *testing.T) {
	if _, err := newKafkaPublisher(context.Background(), PublisherConfig{ID: "k", Type: TypeKafka}, nil); err == nil {
		t.Fatalf("expected error for missing kafka block")
	}
}
