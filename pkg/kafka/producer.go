package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/sorrel/pkg/metrics"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

const (
	EventTypeFactPersisted  = "fact.persisted"
	EventTypeRowQuarantined = "row.quarantined"
	EventTypeRunFinished    = "run.finished"
)

// FactEvent announces a persisted (created or updated) normalized fact
type FactEvent struct {
	EventType   string    `json:"event_type"`
	Kind        string    `json:"kind"`
	BusinessKey string    `json:"business_key"`
	FactID      string    `json:"fact_id"`
	DocumentID  string    `json:"document_id"`
	IsNew       bool      `json:"is_new"`
	Timestamp   time.Time `json:"timestamp"`
}

// QuarantineEvent announces a row rejected by the pipeline
type QuarantineEvent struct {
	EventType   string             `json:"event_type"`
	DocumentID  string             `json:"document_id"`
	Stage       models.Stage       `json:"stage"`
	RowNumber   int                `json:"row_number"`
	FailureCode models.FailureCode `json:"failure_code"`
	Timestamp   time.Time          `json:"timestamp"`
}

// RunEvent announces a pipeline run reaching a terminal status
type RunEvent struct {
	EventType      string           `json:"event_type"`
	DocumentID     string           `json:"document_id"`
	Status         models.RunStatus `json:"status"`
	Stage          models.Stage     `json:"stage"`
	RowsPersisted  int              `json:"rows_persisted"`
	RowsFailed     int              `json:"rows_failed"`
	DurationMillis int64            `json:"duration_millis"`
	Timestamp      time.Time        `json:"timestamp"`
}

// PublishFactEvents publishes persisted-fact events in a batch. Messages are
// keyed by document id so events for one document stay ordered.
func (p *Producer) PublishFactEvents(ctx context.Context, events []*FactEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishFactEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		event.EventType = EventTypeFactPersisted
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(event.DocumentID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "kind", Value: []byte(event.Kind)},
			},
		}
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		metrics.RecordKafkaPublish(EventTypeFactPersisted, "error")
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish fact events")
		return err
	}

	metrics.RecordKafkaPublish(EventTypeFactPersisted, "ok")
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published fact events")

	return nil
}

// PublishQuarantineEvents publishes quarantined-row events in a batch
func (p *Producer) PublishQuarantineEvents(ctx context.Context, events []*QuarantineEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishQuarantineEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		event.EventType = EventTypeRowQuarantined
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(event.DocumentID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "failure_code", Value: []byte(event.FailureCode)},
			},
		}
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		metrics.RecordKafkaPublish(EventTypeRowQuarantined, "error")
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish quarantine events")
		return err
	}

	metrics.RecordKafkaPublish(EventTypeRowQuarantined, "ok")
	return nil
}

// PublishRunFinished publishes a terminal run status event
func (p *Producer) PublishRunFinished(ctx context.Context, event *RunEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRunFinished")
	defer span.End()

	event.EventType = EventTypeRunFinished
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.DocumentID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "status", Value: []byte(event.Status)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordKafkaPublish(EventTypeRunFinished, "error")
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"document_id": event.DocumentID,
			"status":      event.Status,
		}).Error("Failed to publish run finished event")
		return err
	}

	metrics.RecordKafkaPublish(EventTypeRunFinished, "ok")
	return nil
}
