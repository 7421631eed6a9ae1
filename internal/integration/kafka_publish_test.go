//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/adapter/kafka"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/config"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/observability"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/pipeline"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/store"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSinkTopic = "test-wildfire-detections"

// TestRefreshPublishesSnapshot wires the processor to the Kafka writer and
// verifies every accepted detection lands on the sink topic with its headers.
func TestRefreshPublishesSnapshot(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSinkTopic:     testSinkTopic,
		BatchSize:          50,
		BatchFlushInterval: 100 * time.Millisecond,
	}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(store.New(), discardLogger(), observability.NewMetricsForTesting(), pipeline.WithPublisher(writer))
	t.Cleanup(p.Close)

	records := []domain.RawFireRecord{
		{CellID: mustCell(t, 34.05, -118.24), RadiativePower: 42, ObservedAt: latestBucket},
		{CellID: mustCell(t, 36.77, -119.41), RadiativePower: 215, ObservedAt: latestBucket},
		{CellID: "garbage", RadiativePower: 10, ObservedAt: latestBucket},
	}
	res, err := p.Refresh(ctx, func(context.Context) ([]domain.RawFireRecord, error) { return records, nil })
	require.NoError(t, err)
	require.Equal(t, 1, res.Dropped)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	bySeverity := map[string]domain.FireDetection{}
	for len(bySeverity) < 2 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from sink topic")

		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, "1", headers["generation"])
		_, err = time.Parse(time.RFC3339, headers["refreshed_at"])
		assert.NoError(t, err, "refreshed_at should be valid RFC3339")

		var det domain.FireDetection
		require.NoError(t, json.Unmarshal(msg.Value, &det))
		assert.Equal(t, det.CellID, string(msg.Key))
		assert.Equal(t, string(det.Severity), headers["severity"])
		bySeverity[string(det.Severity)] = det
	}

	assert.Contains(t, bySeverity, "low")
	assert.Contains(t, bySeverity, "extreme")
	assert.Equal(t, "#B71C1C", bySeverity["extreme"].Color)
}
