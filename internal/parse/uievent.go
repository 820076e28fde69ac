package parse

import (
	"encoding/json"
	"fmt"

	"github.com/agentkeep/convstate/internal/model"
)

type rawUIEvent struct {
	Kind        model.UIKind `json:"kind"`
	SubKind     string       `json:"sub_kind"`
	Text        string       `json:"text"`
	TimestampMs int64        `json:"timestamp_ms"`
}

// ParseUIEvents decodes a UI-event log, an ordered array of events (§4.2
// "UI-event path"). As with the agent-exchange path, a malformed element is
// folded into a synthetic error text instead of aborting the whole parse.
func ParseUIEvents(data []byte) ([]model.UIEvent, error) {
	data = stripBOM(data)

	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("ui-event log: unrecognised top-level shape (expected array): %w", err)
	}

	out := make([]model.UIEvent, 0, len(elements))
	for i, raw := range elements {
		var rm rawUIEvent
		if err := json.Unmarshal(raw, &rm); err != nil {
			out = append(out, model.UIEvent{
				Kind:          model.UISay,
				SubKind:       "error",
				Text:          fmt.Sprintf("[ERROR] malformed ui event at index %d: %v", i, err),
				OriginalIndex: i,
			})
			continue
		}
		out = append(out, model.UIEvent{
			Kind:          rm.Kind,
			SubKind:       rm.SubKind,
			Text:          rm.Text,
			TimestampMs:   rm.TimestampMs,
			Timestamp:     msToTime(rm.TimestampMs),
			OriginalIndex: i,
		})
	}
	return out, nil
}
