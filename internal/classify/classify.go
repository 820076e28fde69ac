// Package classify implements the content classifier (C3): it tags each
// parsed message with one of the canonical content categories, in the
// priority order fixed by §4.2 of the spec.
package classify

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agentkeep/convstate/internal/model"
)

var (
	toolResultPrefix  = regexp.MustCompile(`(?i)^\[[^\]]+\]\s*Result:`)
	toolResultJSON    = regexp.MustCompile(`(?s)^\s*\{\s*"(tool|type)"\s*:`)
	errorPrefix       = regexp.MustCompile(`(?i)^\[ERROR\]`)
	condensationMark  = regexp.MustCompile(`(?i)^1\.\s*\*{0,2}Previous Conversation:\*{0,2}`)
	newInstructions   = regexp.MustCompile(`(?i)^New instructions for task continuation:\s*`)
	attemptCompletion = regexp.MustCompile(`(?i)<attempt_completion>`)
	toolNameCapture   = regexp.MustCompile(`(?i)^\[([^\]]+)\]\s*Result:`)
)

// Classify converts a message stream into the canonical classified-item
// sequence (§4.2). Items are returned sorted by timestamp with ties broken
// by original source position (invariant I8).
func Classify(messages []model.Message) []model.ClassifiedItem {
	items := make([]model.ClassifiedItem, 0, len(messages))
	for _, m := range messages {
		items = append(items, classifyOne(m))
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.Before(items[j].Timestamp)
		}
		return items[i].OriginalIndex < items[j].OriginalIndex
	})
	return items
}

func classifyOne(m model.Message) model.ClassifiedItem {
	item := model.ClassifiedItem{
		Content:       m.Content,
		Timestamp:     m.Timestamp,
		OriginalIndex: m.OriginalIndex,
	}

	switch m.Role {
	case model.RoleUser:
		item.Actor = model.ActorUser
		classifyUser(m.Content, &item)
	case model.RoleAssistant:
		item.Actor = model.ActorAssistant
		classifyAssistant(m.Content, &item)
	default:
		item.Actor = model.ActorUser
		item.Tag = model.TagUserMessage
	}

	if toolName := toolNameFromParts(m.Parts); toolName != "" && item.ToolName == "" {
		item.ToolName = toolName
	}
	return item
}

// classifyUser applies rules 1-5 of §4.2, in order.
func classifyUser(content string, item *model.ClassifiedItem) {
	trimmed := strings.TrimSpace(content)
	switch {
	case toolResultPrefix.MatchString(trimmed) || toolResultJSON.MatchString(trimmed):
		item.Tag = model.TagToolResult
		if m := toolNameCapture.FindStringSubmatch(trimmed); len(m) == 2 {
			item.ToolName = m[1]
		}
	case errorPrefix.MatchString(trimmed):
		item.Tag = model.TagError
	case condensationMark.MatchString(trimmed):
		item.Tag = model.TagContextCondensation
	case newInstructions.MatchString(trimmed):
		item.Tag = model.TagNewInstructions
		item.Content = newInstructions.ReplaceAllString(trimmed, "")
	default:
		item.Tag = model.TagUserMessage
	}
}

// classifyAssistant applies rules 6-7 of §4.2.
func classifyAssistant(content string, item *model.ClassifiedItem) {
	if attemptCompletion.MatchString(content) {
		item.Tag = model.TagCompletion
		return
	}
	item.Tag = model.TagToolCall
}

func toolNameFromParts(parts []model.ContentPart) string {
	for _, p := range parts {
		if p.Kind == model.PartToolUse || p.Kind == model.PartToolResult {
			if p.ToolName != "" {
				return p.ToolName
			}
		}
	}
	return ""
}
