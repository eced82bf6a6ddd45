package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"imgupload/internal/models"
)

// ProcessedEvent is the payload written to the processed topic.
type ProcessedEvent struct {
	ID     string             `json:"id"`
	Status string             `json:"status"`
	Record *models.FileRecord `json:"record"`
	Errors []string           `json:"errors"`
}

func NewProcessedEvent(res *models.PipelineResult) ProcessedEvent {
	return ProcessedEvent{
		ID:     res.Record.ID.String(),
		Status: res.Status(),
		Record: res.Record,
		Errors: res.Errors,
	}
}

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	w MessageWriter
}

func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// NewKafkaWriter returns a writer for topic on broker.
func NewKafkaWriter(broker, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(broker),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
}

// Publish writes the event keyed by record id.
func (p *KafkaPublisher) Publish(ctx context.Context, res *models.PipelineResult) error {
	const op = "server.Publish"

	ev := NewProcessedEvent(res)
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{Key: []byte(ev.ID), Value: body}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
