package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/PulsePoll/internal/models"
	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes outcomes to a Kafka topic, keyed by sensor id so one
// sensor's answers stay in one partition.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a Kafka sink writing to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

func (s *KafkaSink) Deliver(ctx context.Context, outcome models.ResponseOutcome) error {
	value, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode outcome for %s: %w", outcome.SensorID, err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(outcome.SensorID),
		Value: value,
	})
	if err != nil {
		slog.Error("KafkaSink delivery failed", "error", err, "sensor_id", outcome.SensorID)
		return fmt.Errorf("kafka delivery failed for %s: %w", outcome.SensorID, err)
	}

	slog.Debug("KafkaSink delivery succeeded", "sensor_id", outcome.SensorID)
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
