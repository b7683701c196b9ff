package consumer

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/flowmesh/reliable-commands/internal/executor"
)

// toEnvelope builds an executor.Envelope from a raw Kafka message, the Go
// analogue of Mappers.toEnvelope: headers carry routing metadata, the
// message value carries the opaque payload. When headers don't supply them,
// commandId falls back to a freshly generated id, businessKey to the
// payload's "key" field and then the command id, and the command name to the
// payload's "commandName" field, then fallbackName, then the topic name.
func toEnvelope(msg kafka.Message, fallbackName string) (executor.Envelope, error) {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	commandID, ok := parseUUIDOr(headers["commandId"])
	if !ok {
		commandID = uuid.New()
	}
	correlationID, ok := parseUUIDOr(headers["correlationId"])
	if !ok {
		correlationID = commandID
	}

	var node map[string]any
	_ = json.Unmarshal(msg.Value, &node)

	businessKey := headers["businessKey"]
	if businessKey == "" {
		if v, ok := node["key"].(string); ok {
			businessKey = v
		}
	}
	if businessKey == "" {
		businessKey = commandID.String()
	}

	name := headers["commandName"]
	if name == "" {
		if v, ok := node["commandName"].(string); ok {
			name = v
		}
	}
	if name == "" {
		name = fallbackName
	}
	if name == "" {
		name = deriveNameFromTopic(msg.Topic)
	}

	return executor.Envelope{
		MessageID:     commandID,
		Type:          "CommandRequested",
		Name:          name,
		CommandID:     commandID,
		CorrelationID: correlationID,
		CausationID:   commandID,
		OccurredAt:    time.Now(),
		Key:           businessKey,
		Headers:       headers,
		Payload:       string(msg.Value),
	}, nil
}

func parseUUIDOr(raw string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// deriveNameFromTopic strips the APP.CMD./.Q naming convention back to the
// bare command name, mirroring Mappers.deriveNameFromDestination.
func deriveNameFromTopic(topic string) string {
	cleaned := strings.TrimSuffix(topic, ".Q")
	idx := strings.LastIndex(cleaned, ".")
	if idx >= 0 && idx+1 < len(cleaned) {
		return cleaned[idx+1:]
	}
	if cleaned == "" {
		return "UnknownCommand"
	}
	return cleaned
}
