package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/locate-annotation-service/internal/config"
	"github.com/couchcryptid/locate-annotation-service/internal/domain"
)

// Writer publishes completed annotation sessions to a Kafka topic.
// It implements pipeline.SessionPublisher.
type Writer struct {
	writer  messageWriter
	topic   string
	backoff time.Duration
	logger  *slog.Logger
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

const (
	publishAttempts   = 3
	publishBackoff    = 200 * time.Millisecond
	publishMaxBackoff = 2 * time.Second
)

// NewWriter creates a Kafka producer for the configured session topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaSessionTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, topic: cfg.KafkaSessionTopic, backoff: publishBackoff, logger: logger}
}

// Publish writes one session record, retrying failed writes with exponential
// backoff. Records of the same device share a partition.
func (w *Writer) Publish(ctx context.Context, rec domain.SessionRecord) error {
	msg, err := serializeToMessage(rec)
	if err != nil {
		return err
	}
	backoff := w.backoff
	for attempt := 1; ; attempt++ {
		err = w.writer.WriteMessages(ctx, msg)
		if err == nil {
			break
		}
		if attempt == publishAttempts {
			return fmt.Errorf("publish session %s: %w: %w", rec.DeviceID, domain.ErrUpstreamUnavailable, err)
		}
		w.logger.Warn("session publish failed, retrying",
			"device_id", rec.DeviceID, "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return fmt.Errorf("publish session %s: %w", rec.DeviceID, ctx.Err())
		}
		backoff = retry.NextBackoff(backoff, publishMaxBackoff)
	}
	w.logger.Debug("session published", "device_id", rec.DeviceID, "topic", w.topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a SessionRecord into a Kafka message keyed by
// device id.
func serializeToMessage(rec domain.SessionRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize session record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.DeviceID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "user_id", Value: []byte(rec.UserID)},
			{Key: "completed_at", Value: []byte(rec.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}
