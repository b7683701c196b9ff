// Package outboxfactory builds model.OutboxRow values for the three shapes
// the system ever writes: a command handed to a downstream queue, a reply
// delivered back to whoever is waiting, and a broadcast event. Grounded on
// original_source/.../core/Outbox.java.
package outboxfactory

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/flowmesh/reliable-commands/internal/config"
	"github.com/flowmesh/reliable-commands/internal/model"
)

// Factory builds outbox rows using the process's messaging naming convention.
type Factory struct {
	messaging config.MessagingConfig
}

func New(messaging config.MessagingConfig) *Factory {
	return &Factory{messaging: messaging}
}

// RowCommandRequested builds the row that hands a just-accepted command to
// its downstream queue, stamping the reply-routing headers the consumer will
// echo back on completion.
func (f *Factory) RowCommandRequested(name string, id uuid.UUID, businessKey, payload string, replyHeaders map[string]string) model.OutboxRow {
	headers := mergeHeaders(replyHeaders, map[string]string{
		"commandId":   id.String(),
		"commandName": name,
		"businessKey": businessKey,
	})
	return model.OutboxRow{
		ID:       uuid.New(),
		Category: model.CategoryCommand,
		Topic:    f.messaging.CommandQueueName(name),
		Key:      businessKey,
		Type:     "CommandRequested",
		Payload:  payload,
		Headers:  marshalOrEmpty(headers),
	}
}

// RowEvent builds a broadcast event row. No reply routing is involved: any
// number of subscribers may read it.
func (f *Factory) RowEvent(topic, key, eventType, payload string) model.OutboxRow {
	return model.OutboxRow{
		ID:       uuid.New(),
		Category: model.CategoryEvent,
		Topic:    topic,
		Key:      key,
		Type:     eventType,
		Payload:  payload,
		Headers:  "{}",
	}
}

// RowReply builds the row sent back to whichever queue the inbound envelope
// named in its replyTo header, falling back to the process-wide default
// reply queue. correlationId lets the waiting caller match the reply to its
// original request.
func (f *Factory) RowReply(envHeaders map[string]string, correlationID uuid.UUID, key, replyType, payload string) model.OutboxRow {
	replyTo := f.messaging.ReplyQueue
	if rt, ok := envHeaders["replyTo"]; ok && rt != "" {
		replyTo = rt
	}
	headers := mergeHeaders(envHeaders, map[string]string{"correlationId": correlationID.String()})
	return model.OutboxRow{
		ID:       uuid.New(),
		Category: model.CategoryReply,
		Topic:    replyTo,
		Key:      key,
		Type:     replyType,
		Payload:  payload,
		Headers:  marshalOrEmpty(headers),
	}
}

func mergeHeaders(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func marshalOrEmpty(headers map[string]string) string {
	b, err := json.Marshal(headers)
	if err != nil {
		return "{}"
	}
	return string(b)
}
