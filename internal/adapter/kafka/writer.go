package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/field-trial-form/internal/config"
	"github.com/couchcryptid/field-trial-form/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// EventTypeTrialRecorded is the event_type header on every published message.
const EventTypeTrialRecorded = "trial_recorded"

// Writer produces TrialRecorded events to a Kafka topic.
// It implements form.Publisher.
type Writer struct {
	writer  *kafkago.Writer
	timeout time.Duration
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.KafkaWriteTimeout,
		MaxAttempts:  3,
	}
	return &Writer{writer: w, timeout: cfg.KafkaWriteTimeout, logger: logger}
}

// Publish writes one event, keyed by trial ID so resubmissions of the same
// trial land on the same partition. It gives up after KAFKA_WRITE_TIMEOUT.
func (w *Writer) Publish(ctx context.Context, event domain.TrialRecorded) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write trial event: %w", err)
	}
	w.logger.Debug("trial event published", "trial_id", event.ID, "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a TrialRecorded event into a Kafka message.
func serializeToMessage(event domain.TrialRecorded) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize trial event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventTypeTrialRecorded)},
			{Key: "recorded_at", Value: []byte(event.RecordedAt.Format(time.RFC3339))},
		},
	}, nil
}
