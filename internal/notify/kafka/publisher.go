// Package kafka publishes enrollment and sync events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"registrar/internal/enrollment/ports"
	"registrar/internal/platform/config"
)

// Publisher implements ports.NotificationSink on top of franz-go. Records
// are produced asynchronously; delivery failures are logged, matching the
// fire-and-forget sink contract.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithLogger attaches a logger for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New connects a Kafka publisher. Returns nil if no brokers are configured.
func New(cfg config.KafkaConfig, opts ...Option) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p := &Publisher{client: client, topic: cfg.Topic}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type eventPayload struct {
	Action    string `json:"action"`
	StudentID string `json:"student_id,omitempty"`
	CourseID  string `json:"course_id,omitempty"`
	RecordID  string `json:"record_id,omitempty"`
	Timestamp string `json:"timestamp"`
	Detail    string `json:"detail,omitempty"`
}

func (p *Publisher) Notify(ctx context.Context, event ports.Event) error {
	payload, err := json.Marshal(eventPayload{
		Action:    event.Action,
		StudentID: event.StudentID.String(),
		CourseID:  event.CourseID.String(),
		RecordID:  event.RecordID.String(),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Detail:    event.Detail,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.CourseID.String()),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Warn("kafka delivery failed",
				"topic", p.topic,
				"action", event.Action,
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes pending records and releases the client.
func (p *Publisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}
