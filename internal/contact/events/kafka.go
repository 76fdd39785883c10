package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher writes events as JSON records keyed by primary contact id,
// so every event of one chain lands on the same partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(client *kgo.Client, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	record, err := NewRecord(p.topic, evt)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", evt.Type, err)
	}
	return nil
}

// NewRecord encodes evt for topic.
func NewRecord(topic string, evt Event) (*kgo.Record, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(strconv.FormatInt(evt.PrimaryContactID, 10)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "event_id", Value: []byte(evt.ID)},
		},
		Timestamp: evt.OccurredAt,
	}, nil
}
