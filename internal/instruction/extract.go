package instruction

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/agentkeep/convstate/internal/model"
)

// Delegation is one recognised sub-task delegation (§4.5).
type Delegation struct {
	Mode             string
	NormalizedPrefix string
}

var (
	apiRequestTrace = regexp.MustCompile(`(?s)\[new_task in ([^\]]+?) mode: '((?:[^'\\]|\\.)*)'\]`)
	structuredXML   = regexp.MustCompile(`(?is)<new_task>.*?<mode>(.*?)</mode>.*?<message>(.*?)</message>.*?</new_task>`)
	customXML       = regexp.MustCompile(`(?is)<([a-z_][a-z0-9_\-:]*_(?:complex|delegation))>.*?<mode>(.*?)</mode>.*?<message>(.*?)</message>.*?</([a-z_][a-z0-9_\-:]*_(?:complex|delegation))>`)
	bareTask        = regexp.MustCompile(`(?is)<task>(.*?)</task>`)
	nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// modeAliases maps a substring found in a raw mode label to its canonical
// form (§4.5 canonicalise).
var modeAliases = []string{"orchestrator", "code", "ask", "debug", "architect", "manager"}

type newTaskToolPayload struct {
	Tool    string `json:"tool"`
	Mode    string `json:"mode"`
	Content string `json:"content"`
}

// ExtractFromUIEvents runs the five recognisers of §4.5 over a task's UI
// event log, in order, deduplicating by (mode_canonical, normalised_prefix)
// and preserving first-seen order.
func ExtractFromUIEvents(events []model.UIEvent) []Delegation {
	var out []Delegation
	seen := make(map[string]struct{})

	add := func(mode, content string) {
		canon := canonicalise(mode)
		prefix := Normalize(content, DefaultPrefixLength)
		if !IsSignificant(prefix) {
			return
		}
		key := canon + "\x00" + prefix
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, Delegation{Mode: canon, NormalizedPrefix: prefix})
	}

	for _, ev := range events {
		if d, ok := recogniseToolCall(ev); ok {
			add(d.Mode, d.NormalizedPrefix)
			continue
		}
		if mode, content, ok := recogniseAPIRequestTrace(ev); ok {
			add(mode, content)
			continue
		}
		if mode, content, ok := recogniseStructuredXML(ev.Text); ok {
			add(mode, content)
			continue
		}
		if mode, content, ok := recogniseCustomXML(ev.Text); ok {
			add(mode, content)
			continue
		}
		if content, ok := recogniseBareTask(ev.Text); ok {
			add("unknown", content)
		}
	}
	return out
}

// recogniseToolCall implements rule 1: ask/tool event whose text is a JSON
// newTask tool call.
func recogniseToolCall(ev model.UIEvent) (Delegation, bool) {
	if ev.Kind != model.UIAsk || ev.SubKind != "tool" {
		return Delegation{}, false
	}
	var payload newTaskToolPayload
	if err := json.Unmarshal([]byte(ev.Text), &payload); err != nil {
		return Delegation{}, false
	}
	if payload.Tool != "newTask" || payload.Mode == "" || payload.Content == "" {
		return Delegation{}, false
	}
	return Delegation{Mode: canonicalise(payload.Mode), NormalizedPrefix: Normalize(payload.Content, DefaultPrefixLength)}, true
}

// recogniseAPIRequestTrace implements rule 2.
func recogniseAPIRequestTrace(ev model.UIEvent) (mode, content string, ok bool) {
	if ev.Kind != model.UISay || ev.SubKind != "api_req_started" {
		return "", "", false
	}
	m := apiRequestTrace.FindStringSubmatch(ev.Text)
	if m == nil {
		return "", "", false
	}
	return m[1], unescapeQuotes(m[2]), true
}

// recogniseStructuredXML implements rule 3.
func recogniseStructuredXML(text string) (mode, content string, ok bool) {
	m := structuredXML.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
}

// recogniseCustomXML implements rule 4: any root tag matching
// /^[a-z_][a-z0-9_\-:]*_(complex|delegation)$/i, same inner shape as rule 3.
func recogniseCustomXML(text string) (mode, content string, ok bool) {
	m := customXML.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	if !strings.EqualFold(m[1], m[4]) {
		return "", "", false
	}
	return strings.TrimSpace(m[2]), strings.TrimSpace(m[3]), true
}

// recogniseBareTask implements rule 5: a bare <task>...</task> with an
// unknown mode.
func recogniseBareTask(text string) (content string, ok bool) {
	m := bareTask.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func unescapeQuotes(s string) string {
	return strings.ReplaceAll(s, `\'`, `'`)
}

// canonicalise strips emoji and non-alphanumeric characters, lowercases,
// then maps known aliases by substring match; unknowns pass through
// lowercased or fall back to "unknown" (§4.5).
func canonicalise(mode string) string {
	stripped := nonAlphanumeric.ReplaceAllString(mode, "")
	lower := strings.ToLower(stripped)
	if lower == "" {
		return "unknown"
	}
	for _, alias := range modeAliases {
		if strings.Contains(lower, alias) {
			return alias
		}
	}
	return lower
}
