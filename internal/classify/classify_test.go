package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentkeep/convstate/internal/model"
)

func TestClassify_Rules(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	messages := []model.Message{
		{Role: model.RoleUser, Content: "[readFile] Result: ok", Timestamp: t0, OriginalIndex: 0},
		{Role: model.RoleUser, Content: "[ERROR] something broke", Timestamp: t0.Add(time.Second), OriginalIndex: 1},
		{Role: model.RoleUser, Content: "1. **Previous Conversation:** summary here", Timestamp: t0.Add(2 * time.Second), OriginalIndex: 2},
		{Role: model.RoleUser, Content: "New instructions for task continuation: do the thing", Timestamp: t0.Add(3 * time.Second), OriginalIndex: 3},
		{Role: model.RoleUser, Content: "hello there", Timestamp: t0.Add(4 * time.Second), OriginalIndex: 4},
		{Role: model.RoleAssistant, Content: "working on it", Timestamp: t0.Add(5 * time.Second), OriginalIndex: 5},
		{Role: model.RoleAssistant, Content: "done <attempt_completion>", Timestamp: t0.Add(6 * time.Second), OriginalIndex: 6},
	}

	items := Classify(messages)
	if assert.Len(t, items, 7) {
		assert.Equal(t, model.TagToolResult, items[0].Tag)
		assert.Equal(t, "readFile", items[0].ToolName)
		assert.Equal(t, model.TagError, items[1].Tag)
		assert.Equal(t, model.TagContextCondensation, items[2].Tag)
		assert.Equal(t, model.TagNewInstructions, items[3].Tag)
		assert.Equal(t, "do the thing", items[3].Content)
		assert.Equal(t, model.TagUserMessage, items[4].Tag)
		assert.Equal(t, model.TagToolCall, items[5].Tag)
		assert.Equal(t, model.TagCompletion, items[6].Tag)
	}
}

func TestClassify_SortsByTimestampThenOriginalIndex(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	messages := []model.Message{
		{Role: model.RoleUser, Content: "second", Timestamp: t0, OriginalIndex: 1},
		{Role: model.RoleUser, Content: "first", Timestamp: t0, OriginalIndex: 0},
	}
	items := Classify(messages)
	assert.Equal(t, "first", items[0].Content)
	assert.Equal(t, "second", items[1].Content)
}

func TestClassify_ToolResultJSONShape(t *testing.T) {
	messages := []model.Message{
		{Role: model.RoleUser, Content: `{"tool": "writeFile", "ok": true}`},
	}
	items := Classify(messages)
	assert.Equal(t, model.TagToolResult, items[0].Tag)
}
