// Package publish forwards refreshed snapshots to downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/mr1hm/go-disaster-map/internal/config"
	"github.com/mr1hm/go-disaster-map/internal/ingestion"
	"github.com/mr1hm/go-disaster-map/internal/models"
)

// messageWriter is the subset of *kafkago.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes every event of a snapshot to a Kafka topic, keyed by
// event ID so compacted topics keep the latest version of each event.
type KafkaPublisher struct {
	writer messageWriter
	logger *slog.Logger
}

func NewKafkaPublisher(cfg config.KafkaConfig, logger *slog.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

// Publish writes the snapshot's events in one batch. Fallback snapshots are
// skipped; the demo event is not real data.
func (p *KafkaPublisher) Publish(ctx context.Context, snap *models.Snapshot) (int, error) {
	if snap == nil || len(snap.Events) == 0 || isFallback(snap) {
		return 0, nil
	}

	msgs := make([]kafkago.Message, len(snap.Events))
	for i := range snap.Events {
		msg, err := serializeToMessage(snap.Events[i], snap.Generation)
		if err != nil {
			return 0, err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("write %d events: %w", len(msgs), err)
	}
	p.logger.Debug("published snapshot", "generation", snap.Generation, "events", len(msgs))
	return len(msgs), nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func isFallback(snap *models.Snapshot) bool {
	return len(snap.Events) == 1 && snap.Events[0].ID == ingestion.FallbackID
}

func serializeToMessage(event models.DisasterEvent, generation uint64) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize disaster event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "severity", Value: []byte(event.Severity)},
			{Key: "generation", Value: []byte(strconv.FormatUint(generation, 10))},
		},
	}, nil
}
