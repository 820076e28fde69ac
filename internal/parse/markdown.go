package parse

import (
	"regexp"
	"strings"

	"github.com/agentkeep/convstate/internal/model"
)

// markdownMarker matches a role marker at the start of a line: "**User:**"
// or "**Assistant:**", case-insensitively (§4.4).
var markdownMarker = regexp.MustCompile(`(?mi)^\*\*(User|Assistant)\s*:\*\*\s*`)

// markdownSection is one role-tagged block of a Markdown transcript, with
// the 1-based source line the marker was found on.
type markdownSection struct {
	role       model.Role
	text       string
	lineNumber int
}

// ParseMarkdownTranscript accepts a pre-rendered Markdown export using the
// "**User:**"/"**Assistant:**" delimiters and produces the same model.Message
// stream the agent-exchange path would, with OriginalIndex set to the
// section's order; each section's 1-based marker line is returned in the
// second slice, index-aligned with the messages (§4.4).
func ParseMarkdownTranscript(data []byte) ([]model.Message, []int) {
	text := string(stripBOM(data))
	locs := markdownMarker.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil, nil
	}

	lineOf := lineIndexer(text)

	var sections []markdownSection
	for i, loc := range locs {
		roleStart, roleEnd := loc[2], loc[3]
		bodyStart := loc[1]
		bodyEnd := len(text)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		role := model.RoleUser
		if strings.EqualFold(text[roleStart:roleEnd], "Assistant") {
			role = model.RoleAssistant
		}
		sections = append(sections, markdownSection{
			role:       role,
			text:       strings.TrimSpace(text[bodyStart:bodyEnd]),
			lineNumber: lineOf(loc[0]),
		})
	}

	messages := make([]model.Message, 0, len(sections))
	lineNumbers := make([]int, 0, len(sections))
	for i, s := range sections {
		messages = append(messages, model.Message{
			Role:          s.role,
			Content:       s.text,
			OriginalIndex: i,
		})
		lineNumbers = append(lineNumbers, s.lineNumber)
	}
	return messages, lineNumbers
}

// lineIndexer returns a function mapping a byte offset into text to its
// 1-based line number.
func lineIndexer(text string) func(offset int) int {
	lineStarts := []int{0}
	for i, r := range text {
		if r == '\n' {
			lineStarts = append(lineStarts, i+1)
		}
	}
	return func(offset int) int {
		// binary search would be overkill for transcript-sized inputs.
		line := 1
		for _, start := range lineStarts[1:] {
			if start > offset {
				break
			}
			line++
		}
		return line
	}
}
