package relay

import "context"

// CommandQueue is the point-to-point SPI: exactly one consumer group reads
// each message. Backs both command dispatch and reply delivery.
type CommandQueue interface {
	Send(ctx context.Context, destination, payload string, headers map[string]string) error
}

// EventPublisher is the broadcast SPI: any number of subscribers may read a
// published event.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key, payload string, headers map[string]string) error
}
