// Package parse implements the message parser (C2): it turns the two
// on-disk log encodings (agent-exchange, UI-event) plus a Markdown export
// path into the typed event streams consumed by the content classifier.
package parse

import (
	"encoding/json"
	"fmt"

	"github.com/agentkeep/convstate/internal/model"
)

// rawMessage mirrors the on-disk agent-exchange message shape. Content is
// decoded lazily (json.RawMessage) because it is either a bare string or an
// ordered list of typed parts (§3.1).
type rawMessage struct {
	Role      model.Role      `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp flexTimestamp   `json:"timestamp"`
}

type rawPart struct {
	Kind     model.PartKind  `json:"kind"`
	ToolName string          `json:"tool_name"`
	Payload  json.RawMessage `json:"payload"`
}

// rawEnvelope accepts either a bare array of messages or an object carrying
// a "messages" field (§4.2 "Agent-exchange path").
type rawEnvelope struct {
	Messages []json.RawMessage `json:"messages"`
}

// ParseAgentExchange decodes an agent-exchange log. A failure to make any
// sense of the top-level shape is a whole-file error (§7c) and is returned
// as err; a failure to decode one element of the array is recorded as a
// synthetic "[ERROR] ..." user message (§7b) so it flows through the normal
// classification rules (§4.2 rule 2) instead of aborting the parse.
func ParseAgentExchange(data []byte) ([]model.Message, error) {
	data = stripBOM(data)

	elements, err := topLevelMessages(data)
	if err != nil {
		return nil, fmt.Errorf("agent-exchange log: %w", err)
	}

	out := make([]model.Message, 0, len(elements))
	for i, raw := range elements {
		msg, err := decodeMessage(raw)
		if err != nil {
			out = append(out, model.Message{
				Role:          model.RoleUser,
				Content:       fmt.Sprintf("[ERROR] malformed message at index %d: %v", i, err),
				OriginalIndex: i,
			})
			continue
		}
		msg.OriginalIndex = i
		out = append(out, msg)
	}
	return out, nil
}

// topLevelMessages normalises the two accepted top-level shapes into a flat
// slice of raw message elements.
func topLevelMessages(data []byte) ([]json.RawMessage, error) {
	var asArray []json.RawMessage
	if err := json.Unmarshal(data, &asArray); err == nil {
		return asArray, nil
	}

	var asEnvelope rawEnvelope
	if err := json.Unmarshal(data, &asEnvelope); err == nil {
		return asEnvelope.Messages, nil
	}

	return nil, fmt.Errorf("unrecognised top-level shape (expected array or {messages:[...]})")
}

func decodeMessage(raw json.RawMessage) (model.Message, error) {
	var rm rawMessage
	if err := json.Unmarshal(raw, &rm); err != nil {
		return model.Message{}, err
	}

	msg := model.Message{
		Role:      rm.Role,
		Timestamp: rm.Timestamp.t,
	}

	if len(rm.Content) == 0 {
		return msg, nil
	}

	// content is either a bare string or an array of typed parts.
	var asString string
	if err := json.Unmarshal(rm.Content, &asString); err == nil {
		msg.Content = asString
		return msg, nil
	}

	var asParts []rawPart
	if err := json.Unmarshal(rm.Content, &asParts); err != nil {
		return model.Message{}, fmt.Errorf("content neither string nor part list: %w", err)
	}

	parts := make([]model.ContentPart, 0, len(asParts))
	var textFragments []string
	for _, p := range asParts {
		var payload interface{}
		_ = json.Unmarshal(p.Payload, &payload)
		parts = append(parts, model.ContentPart{
			Kind:     p.Kind,
			ToolName: p.ToolName,
			Payload:  payload,
		})
		if p.Kind == model.PartText {
			if text, ok := payload.(string); ok {
				textFragments = append(textFragments, text)
			}
		}
	}
	msg.Parts = parts
	msg.Content = joinSpace(textFragments)
	return msg, nil
}

func joinSpace(fragments []string) string {
	out := ""
	for i, f := range fragments {
		if i > 0 {
			out += " "
		}
		out += f
	}
	return out
}
