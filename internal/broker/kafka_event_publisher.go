package broker

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaEventPublisher backs broadcast events. It shares the same
// per-topic-writer shape as KafkaCommandQueue but is kept a distinct type so
// the relay's two SPIs stay decoupled, matching original_source's separate
// CommandQueue/EventPublisher interfaces.
type KafkaEventPublisher struct {
	queue *KafkaCommandQueue
}

func NewKafkaEventPublisher(brokers []string) *KafkaEventPublisher {
	return &KafkaEventPublisher{queue: NewKafkaCommandQueue(brokers)}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, topic, key, payload string, headers map[string]string) error {
	w := p.queue.writerFor(topic)
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   []byte(payload),
		Headers: toKafkaHeaders(headers),
		Time:    time.Now(),
	}
	return w.WriteMessages(ctx, msg)
}

func (p *KafkaEventPublisher) Close() error {
	return p.queue.Close()
}
