package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/segmentio/kafka-go"

	"imgupload/internal/upload"
)

// IngestMessage asks the service to take over files already on local disk.
// Each field holds a single file's properties or, for multi-file fields,
// one array per property: name, tmp_name, type, size and error.
type IngestMessage struct {
	Files map[string]any `json:"files"`
}

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader   MessageReader
	uploader *upload.Uploader
	recorder *Recorder
	log      Logger
}

func NewConsumer(reader MessageReader, uploader *upload.Uploader, recorder *Recorder, log Logger) *Consumer {
	return &Consumer{reader: reader, uploader: uploader, recorder: recorder, log: log}
}

// NewKafkaReader returns a group reader for the ingest topic.
func NewKafkaReader(broker, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   topic,
		GroupID: "image-upload-group",
	})
}

// Run reads until ctx is done. A bad message is logged and skipped.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Printf("error reading message: %v", err)
			continue
		}
		if err := c.Handle(ctx, msg.Value); err != nil {
			c.log.Printf("error processing message at offset %d: %v", msg.Offset, err)
		}
	}
}

// Handle processes every field of one ingest message, fields in name order
// and files in index order. A transport failure aborts the rest of the
// message.
func (c *Consumer) Handle(ctx context.Context, value []byte) error {
	const op = "server.Consumer.Handle"

	var in IngestMessage
	if err := json.Unmarshal(value, &in); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(in.Files) == 0 {
		return fmt.Errorf("%s: no files", op)
	}

	files := upload.Reshape(in.Files)
	fields := make([]string, 0, len(files))
	for f := range files {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var srcs []upload.Source
	for _, f := range fields {
		s, err := upload.SourcesFrom(files[f])
		if err != nil {
			return fmt.Errorf("%s: field %s: %w", op, f, err)
		}
		srcs = append(srcs, s...)
	}

	results, batchErr := c.uploader.ProcessBatch(ctx, srcs)
	var saveErrs []error
	for _, res := range results {
		if err := c.recorder.Complete(ctx, res); err != nil {
			saveErrs = append(saveErrs, err)
		}
	}
	if batchErr != nil {
		return fmt.Errorf("%s: %w", op, batchErr)
	}
	if len(saveErrs) > 0 {
		return fmt.Errorf("%s: %w", op, errors.Join(saveErrs...))
	}
	return nil
}
