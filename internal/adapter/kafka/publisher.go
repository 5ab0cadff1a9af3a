// Package kafka publishes threshold alerts to a Kafka topic after each
// successful fusion run. Publishing is feature-flagged: when no brokers are
// configured the service runs without it.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/air-risk-grid-service/internal/config"
	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
	"github.com/couchcryptid/air-risk-grid-service/internal/observability"
	"github.com/couchcryptid/air-risk-grid-service/internal/query"
)

// Publisher produces alert events to the configured topic.
type Publisher struct {
	writer  *kafkago.Writer
	region  string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a Kafka producer for the alert topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, region: cfg.Region, logger: logger, metrics: metrics}
}

// PublishAlerts serializes and publishes a batch of alerts in a single
// WriteMessages call. An empty batch is a no-op.
func (p *Publisher) PublishAlerts(ctx context.Context, alerts []query.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	producedAt := domain.Clock().Now().UTC()
	msgs := make([]kafkago.Message, len(alerts))
	for i := range alerts {
		msg, err := serializeAlert(alerts[i], p.region, producedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish alerts: %w", err)
	}
	p.metrics.AlertsPublished.Add(float64(len(alerts)))
	p.logger.Info("alerts published", "count", len(alerts), "region", p.region)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeAlert marshals an alert into a Kafka message keyed by region and
// cell, so replays of the same cell compact cleanly.
func serializeAlert(alert query.Alert, region string, producedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(region + ":" + alert.CellID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "severity", Value: []byte(alert.Severity)},
			{Key: "produced_at", Value: []byte(producedAt.Format(time.RFC3339))},
		},
	}, nil
}
