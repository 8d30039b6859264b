package kafka

import (
	"context"
	"log/slog"
	"sort"

	"github.com/couchcryptid/reseller-geocoder/internal/config"
	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces messages to a Kafka topic.
// It implements pipeline.BatchLoader.
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
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes the geocoded records to the sink topic in a single
// WriteMessages call. Records are keyed by reseller ID so updates for one
// reseller stay on one partition.
func (w *Writer) LoadBatch(ctx context.Context, records []domain.OutputRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msgs[i] = toMessage(records[i])
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// toMessage converts an OutputRecord into a Kafka message with headers in key order.
func toMessage(rec domain.OutputRecord) kafkago.Message {
	keys := make([]string, 0, len(rec.Headers))
	for k := range rec.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafkago.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(rec.Headers[k])})
	}
	return kafkago.Message{
		Key:     rec.Key,
		Value:   rec.Value,
		Headers: headers,
	}
}
