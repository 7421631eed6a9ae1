package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/config"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes detection snapshots to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchFlushInterval,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes one message per detection in a single WriteMessages call.
// Messages are keyed by cell id, so a cell's history stays on one partition.
func (w *Writer) Publish(ctx context.Context, snap domain.Snapshot) error {
	if len(snap.Detections) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(snap.Detections))
	for i := range snap.Detections {
		msg, err := serializeToMessage(snap, snap.Detections[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write snapshot %d: %w", snap.Generation, err)
	}
	w.logger.Debug("snapshot published", "generation", snap.Generation, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a FireDetection into a Kafka message.
func serializeToMessage(snap domain.Snapshot, det domain.FireDetection) (kafkago.Message, error) {
	data, err := json.Marshal(det)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize fire detection: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(det.CellID),
		Value: data,
		Time:  snap.RefreshedAt,
		Headers: []kafkago.Header{
			{Key: "severity", Value: []byte(det.Severity)},
			{Key: "generation", Value: []byte(strconv.FormatUint(snap.Generation, 10))},
			{Key: "refreshed_at", Value: []byte(snap.RefreshedAt.Format(time.RFC3339))},
		},
	}, nil
}
