package instruction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentkeep/convstate/internal/model"
)

func TestExtractFromUIEvents_ToolCallJSON(t *testing.T) {
	events := []model.UIEvent{
		{
			Kind:    model.UIAsk,
			SubKind: "tool",
			Text:    `{"tool":"newTask","mode":"💻 Code","content":"Refactor the parser module to support streaming input"}`,
		},
	}
	got := ExtractFromUIEvents(events)
	if assert.Len(t, got, 1) {
		assert.Equal(t, "code", got[0].Mode)
		assert.Contains(t, got[0].NormalizedPrefix, "Refactor the parser module")
	}
}

func TestExtractFromUIEvents_APIRequestTrace(t *testing.T) {
	events := []model.UIEvent{
		{
			Kind:    model.UISay,
			SubKind: "api_req_started",
			Text:    `[new_task in orchestrator mode: 'Coordinate the sub-agents for release testing']`,
		},
	}
	got := ExtractFromUIEvents(events)
	if assert.Len(t, got, 1) {
		assert.Equal(t, "orchestrator", got[0].Mode)
	}
}

func TestExtractFromUIEvents_StructuredXML(t *testing.T) {
	events := []model.UIEvent{
		{
			Kind: model.UISay,
			Text: "<new_task><mode>debug</mode><message>Investigate the flaky retry logic in the uploader</message></new_task>",
		},
	}
	got := ExtractFromUIEvents(events)
	if assert.Len(t, got, 1) {
		assert.Equal(t, "debug", got[0].Mode)
	}
}

func TestExtractFromUIEvents_CustomXMLDelegation(t *testing.T) {
	events := []model.UIEvent{
		{
			Kind: model.UISay,
			Text: "<task_complex><mode>architect</mode><message>Design the new hierarchy reconstruction component end to end</message></task_complex>",
		},
	}
	got := ExtractFromUIEvents(events)
	if assert.Len(t, got, 1) {
		assert.Equal(t, "architect", got[0].Mode)
	}
}

func TestExtractFromUIEvents_BareTask(t *testing.T) {
	events := []model.UIEvent{
		{Kind: model.UISay, Text: "<task>Write unit tests for the new skeleton builder component</task>"},
	}
	got := ExtractFromUIEvents(events)
	if assert.Len(t, got, 1) {
		assert.Equal(t, "unknown", got[0].Mode)
	}
}

func TestExtractFromUIEvents_DeduplicatesByModeAndPrefix(t *testing.T) {
	text := `{"tool":"newTask","mode":"code","content":"Add retry support to the upsert pipeline with backoff"}`
	events := []model.UIEvent{
		{Kind: model.UIAsk, SubKind: "tool", Text: text},
		{Kind: model.UIAsk, SubKind: "tool", Text: text},
	}
	got := ExtractFromUIEvents(events)
	assert.Len(t, got, 1)
}

func TestExtractFromUIEvents_DiscardsShortContent(t *testing.T) {
	events := []model.UIEvent{
		{Kind: model.UIAsk, SubKind: "tool", Text: `{"tool":"newTask","mode":"code","content":"hi"}`},
	}
	got := ExtractFromUIEvents(events)
	assert.Empty(t, got)
}

func TestCanonicalise(t *testing.T) {
	cases := map[string]string{
		"💻 Code":       "code",
		"Orchestrator":  "orchestrator",
		"ASK":           "ask",
		"totally-novel": "totallynovel",
		"":              "unknown",
	}
	for in, want := range cases {
		assert.Equal(t, want, canonicalise(in), in)
	}
}
