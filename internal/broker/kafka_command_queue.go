// Package broker adapts the relay's CommandQueue/EventPublisher SPIs onto
// segmentio/kafka-go, the Kafka client the teacher repo already depends on.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaCommandQueue backs both command dispatch and reply delivery: every
// destination is a distinct Kafka topic, each with its own writer so
// kafka-go can batch per-topic independently. Writers are created lazily and
// cached, since the set of destinations (one per command name, plus the
// reply topic) is only known once commands start flowing.
type KafkaCommandQueue struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafkaCommandQueue(brokers []string) *KafkaCommandQueue {
	return &KafkaCommandQueue{brokers: brokers, writers: make(map[string]*kafka.Writer)}
}

func (q *KafkaCommandQueue) Send(ctx context.Context, destination, payload string, headers map[string]string) error {
	w := q.writerFor(destination)
	msg := kafka.Message{
		Value:   []byte(payload),
		Headers: toKafkaHeaders(headers),
		Time:    time.Now(),
	}
	return w.WriteMessages(ctx, msg)
}

func (q *KafkaCommandQueue) writerFor(topic string) *kafka.Writer {
	q.mu.Lock()
	defer q.mu.Unlock()

	if w, ok := q.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(q.brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	q.writers[topic] = w
	return w
}

// Close flushes and closes every writer this queue has opened.
func (q *KafkaCommandQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var firstErr error
	for _, w := range q.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func toKafkaHeaders(headers map[string]string) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
