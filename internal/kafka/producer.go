package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"rfm-dashboard/internal/models"
)

const (
	messageTypeHeader = "type"
	typeCustomer      = "customer_rfm"
	typeSummary       = "rfm_summary"
)

// Producer publishes finished RFM reports to a Kafka topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a producer for topic. Messages are keyed, so the hash
// balancer keeps every record for one customer on the same partition.
func NewProducer(brokers []string, topic string, logger *slog.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger,
	}
}

type customerEvent struct {
	AnalysisID   string    `json:"analysis_id"`
	SnapshotDate time.Time `json:"snapshot_date"`
	models.CustomerRFM
}

type summaryEvent struct {
	AnalysisID   string                `json:"analysis_id"`
	Source       string                `json:"source"`
	SnapshotDate time.Time             `json:"snapshot_date"`
	Customers    int                   `json:"customers"`
	Segments     []models.SegmentCount `json:"segments"`
}

// Publish sends one message per customer followed by a summary message keyed
// by the analysis id.
func (p *Producer) Publish(ctx context.Context, analysisID, source string, report *models.Report) error {
	msgs, err := buildMessages(analysisID, source, report)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), p.writer.Topic, err)
	}

	p.logger.Info("published rfm report",
		"analysis_id", analysisID,
		"topic", p.writer.Topic,
		"messages", len(msgs),
	)
	return nil
}

func buildMessages(analysisID, source string, report *models.Report) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(report.Customers)+1)

	for _, c := range report.Customers {
		data, err := json.Marshal(customerEvent{
			AnalysisID:   analysisID,
			SnapshotDate: report.SnapshotDate,
			CustomerRFM:  c,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal customer %s: %w", c.CustomerID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(c.CustomerID),
			Value:   data,
			Headers: []kafka.Header{{Key: messageTypeHeader, Value: []byte(typeCustomer)}},
		})
	}

	data, err := json.Marshal(summaryEvent{
		AnalysisID:   analysisID,
		Source:       source,
		SnapshotDate: report.SnapshotDate,
		Customers:    len(report.Customers),
		Segments:     report.Segments,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	msgs = append(msgs, kafka.Message{
		Key:     []byte(analysisID),
		Value:   data,
		Headers: []kafka.Header{{Key: messageTypeHeader, Value: []byte(typeSummary)}},
	})

	return msgs, nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
