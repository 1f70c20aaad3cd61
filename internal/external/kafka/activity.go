package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	model "github.com/glkeru/gamification/internal/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// ActivityReader bridges external activity topics onto the bus.
type ActivityReader struct {
	reader *kafka.Reader
}

func NewActivityReader(topic string) (reader *ActivityReader, err error) {
	// config
	kafkaurl := os.Getenv("KAFKA_ACTIVITY_URL")
	if kafkaurl == "" {
		return nil, fmt.Errorf("env KAFKA_ACTIVITY_URL is not set")
	}
	kafkaport := os.Getenv("KAFKA_ACTIVITY_PORT")
	if kafkaport == "" {
		return nil, fmt.Errorf("env KAFKA_ACTIVITY_PORT is not set")
	}

	kafkaconfig := kafka.ReaderConfig{
		Brokers: []string{kafkaurl + ":" + kafkaport},
		Topic:   topic,
		GroupID: "activity_gamification",
	}
	return &ActivityReader{kafka.NewReader(kafkaconfig)}, nil
}

// GetNewEvent reads one message and wraps it in the bus envelope. Messages
// that already carry an envelope keep their event id so dedup holds across
// the bridge.
func (k *ActivityReader) GetNewEvent(ctx context.Context) (model.Event, error) {
	msg, err := k.reader.ReadMessage(ctx)
	if err != nil {
		return model.Event{}, err
	}

	var ev model.Event
	if err := json.Unmarshal(msg.Value, &ev); err == nil && ev.ID != uuid.Nil && ev.Type != "" {
		return ev, nil
	}

	// bare activity payload from a legacy producer
	return model.Event{
		ID:            uuid.New(),
		Type:          model.TopicActivity,
		Payload:       msg.Value,
		SourceID:      "kafka:" + msg.Topic,
		OccurredAt:    time.Now().UTC(),
		SchemaVersion: 1,
	}, nil
}

func (k *ActivityReader) CloseReader() {
	k.reader.Close()
}
