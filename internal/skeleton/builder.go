// Package skeleton implements the skeleton builder (C4): it turns one task
// directory's raw logs into the canonical ConversationSkeleton, skipping
// rebuild when nothing on disk has changed.
package skeleton

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/viant/afs"

	"github.com/agentkeep/convstate/internal/classify"
	"github.com/agentkeep/convstate/internal/detect"
	"github.com/agentkeep/convstate/internal/instruction"
	"github.com/agentkeep/convstate/internal/model"
	"github.com/agentkeep/convstate/internal/parse"
)

// Builder produces ConversationSkeleton values from detected task
// directories (§4.3).
type Builder struct {
	fs afs.Service
}

// New creates a Builder reading through the given filesystem service. A nil
// fs defaults to afs.New().
func New(fs afs.Service) *Builder {
	if fs == nil {
		fs = afs.New()
	}
	return &Builder{fs: fs}
}

// rawMetadata is the optional task_metadata.json shape (§6): fields are all
// best-effort hints, never required.
type rawMetadata struct {
	Workspace string `json:"workspace"`
	Mode      string `json:"mode"`
	Title     string `json:"title"`
}

var (
	cwdPattern      = regexp.MustCompile(`(?i)Current working directory[^\n]*?:\s*([^\s\n]+)`)
	tagLikeLine     = regexp.MustCompile(`^\s*<[^>]+>\s*$`)
	toolFilePathKey = []string{"path", "file_path", "filePath"}
)

// Build parses and classifies the task directory named by manifest and
// produces its skeleton. previous, if non-nil, is the last-built skeleton
// for this task; when its checksums still match and forceRebuild is false,
// previous is returned unchanged (§4.3 rebuild-skip rule).
func (b *Builder) Build(ctx context.Context, manifest detect.Manifest, previous *model.ConversationSkeleton, forceRebuild bool) (*model.ConversationSkeleton, error) {
	agentBytes, uiBytes, metaBytes, sizes, err := b.readFiles(ctx, manifest)
	if err != nil {
		return nil, fmt.Errorf("skeleton build %s: %w", manifest.TaskID, err)
	}

	checksums := checksumsOf(agentBytes, uiBytes, metaBytes)
	if previous != nil && previous.ProcessingState.Phase1Done && !forceRebuild && checksumsEqual(previous.SourceFileChecksums, checksums) {
		return previous, nil
	}

	sk := &model.ConversationSkeleton{TaskID: manifest.TaskID}
	if previous != nil {
		sk.ParentTaskID = previous.ParentTaskID
		sk.ReconstructedParentID = previous.ReconstructedParentID
	}

	var errs []string

	var messages []model.Message
	if len(agentBytes) > 0 {
		msgs, err := parse.ParseAgentExchange(agentBytes)
		if err != nil {
			errs = append(errs, fmt.Sprintf("agent-exchange: %v", err))
		} else {
			messages = msgs
		}
	}

	var uiEvents []model.UIEvent
	if len(uiBytes) > 0 {
		events, err := parse.ParseUIEvents(uiBytes)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ui-events: %v", err))
		} else {
			uiEvents = events
		}
	}

	var meta rawMetadata
	if len(metaBytes) > 0 {
		_ = parse.DecodeLenient(metaBytes, &meta)
	}

	items := classify.Classify(messages)
	sk.Sequence = items

	sk.TruncatedInstruction = truncatedInstruction(items)
	sk.Metadata.Title = titleOf(sk.TruncatedInstruction)
	if meta.Title != "" {
		sk.Metadata.Title = meta.Title
	}

	created, lastActivity := timeRange(messages, uiEvents)
	sk.Metadata.CreatedAt = created
	sk.Metadata.LastActivity = lastActivity
	sk.Metadata.Workspace = workspaceOf(meta.Workspace, messages, manifest.DirectoryPath)
	sk.Metadata.Mode = meta.Mode
	sk.Metadata.MessageCount = len(items)
	sk.Metadata.ActionCount = actionCount(items)
	sk.Metadata.TotalSize = sizes
	sk.Metadata.DataSource = manifest.DirectoryPath

	sk.ChildTaskInstructionPrefixes = prefixesOf(instruction.ExtractFromUIEvents(uiEvents))

	sk.ProcessingState.Phase1Done = true
	sk.ProcessingState.LastProcessedAt = time.Now().UTC()
	sk.ProcessingState.Errors = errs
	sk.SourceFileChecksums = checksums

	return sk, nil
}

func (b *Builder) readFiles(ctx context.Context, manifest detect.Manifest) (agent, ui, meta []byte, totalSize int64, err error) {
	if manifest.HasAgentExchange {
		agent, err = downloadAll(ctx, b.fs, manifest.FilePath(detect.AgentExchangeFile))
		if err != nil {
			return nil, nil, nil, 0, err
		}
		totalSize += int64(len(agent))
	}
	if manifest.HasUIEvents {
		ui, err = downloadAll(ctx, b.fs, manifest.FilePath(detect.UIEventFile))
		if err != nil {
			return nil, nil, nil, 0, err
		}
		totalSize += int64(len(ui))
	}
	if manifest.HasMetadata {
		meta, err = downloadAll(ctx, b.fs, manifest.FilePath(detect.MetadataFile))
		if err != nil {
			return nil, nil, nil, 0, err
		}
		totalSize += int64(len(meta))
	}
	return agent, ui, meta, totalSize, nil
}

func downloadAll(ctx context.Context, fs afs.Service, path string) ([]byte, error) {
	return fs.DownloadWithURL(ctx, path)
}

func checksumsOf(agent, ui, meta []byte) map[string]string {
	out := map[string]string{}
	if len(agent) > 0 {
		out[detect.AgentExchangeFile] = md5Hex(agent)
	}
	if len(ui) > 0 {
		out[detect.UIEventFile] = md5Hex(ui)
	}
	if len(meta) > 0 {
		out[detect.MetadataFile] = md5Hex(meta)
	}
	return out
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func checksumsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// truncatedInstruction implements §4.3's first bullet: the first
// user_message item whose text, after stripping leading tag-like lines, has
// at least 10 characters, reduced to a normalised prefix.
func truncatedInstruction(items []model.ClassifiedItem) string {
	for _, item := range items {
		if item.Tag != model.TagUserMessage {
			continue
		}
		stripped := stripLeadingTagLines(item.Content)
		if len(stripped) < 10 {
			continue
		}
		return instruction.Normalize(stripped, instruction.DefaultPrefixLength)
	}
	return ""
}

func stripLeadingTagLines(text string) string {
	lines := strings.Split(text, "\n")
	i := 0
	for i < len(lines) && tagLikeLine.MatchString(lines[i]) {
		i++
	}
	return strings.TrimSpace(strings.Join(lines[i:], "\n"))
}

func titleOf(truncated string) string {
	firstLine := truncated
	if idx := strings.IndexByte(truncated, '\n'); idx >= 0 {
		firstLine = truncated[:idx]
	}
	runes := []rune(firstLine)
	if len(runes) > 80 {
		runes = runes[:80]
	}
	return string(runes)
}

func actionCount(items []model.ClassifiedItem) int {
	n := 0
	for _, item := range items {
		if item.Tag == model.TagToolCall || item.Tag == model.TagToolResult {
			n++
		}
	}
	return n
}

func timeRange(messages []model.Message, events []model.UIEvent) (created, last time.Time) {
	var min, max time.Time
	consider := func(t time.Time) {
		if t.IsZero() {
			return
		}
		if min.IsZero() || t.Before(min) {
			min = t
		}
		if max.IsZero() || t.After(max) {
			max = t
		}
	}
	for _, m := range messages {
		consider(m.Timestamp)
	}
	for _, e := range events {
		consider(e.Timestamp)
	}
	if min.IsZero() {
		now := time.Now().UTC()
		return now, now
	}
	return min, max
}

// workspaceOf resolves the workspace field by the precedence order of §4.3:
// explicit metadata, tool-payload file paths, a "Current working directory"
// regex over message bodies, then a heuristic from the task directory name.
func workspaceOf(explicit string, messages []model.Message, directoryPath string) string {
	if explicit != "" {
		return explicit
	}
	if ws := workspaceFromToolPayloads(messages); ws != "" {
		return ws
	}
	if ws := workspaceFromBodies(messages); ws != "" {
		return ws
	}
	return workspaceFromDirectoryName(directoryPath)
}

func workspaceFromToolPayloads(messages []model.Message) string {
	for _, m := range messages {
		for _, p := range m.Parts {
			obj, ok := p.Payload.(map[string]interface{})
			if !ok {
				continue
			}
			for _, key := range toolFilePathKey {
				if v, ok := obj[key].(string); ok && v != "" {
					return parentDir(v)
				}
			}
		}
	}
	return ""
}

func workspaceFromBodies(messages []model.Message) string {
	for _, m := range messages {
		if match := cwdPattern.FindStringSubmatch(m.Content); match != nil {
			return strings.TrimRight(match[1], "/")
		}
	}
	return ""
}

func workspaceFromDirectoryName(directoryPath string) string {
	return parentDir(directoryPath)
}

func parentDir(path string) string {
	path = strings.TrimRight(path, "/")
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return path
	}
	return path[:idx]
}

func prefixesOf(delegations []instruction.Delegation) []string {
	out := make([]string, 0, len(delegations))
	seen := make(map[string]struct{}, len(delegations))
	for _, d := range delegations {
		if _, ok := seen[d.NormalizedPrefix]; ok {
			continue
		}
		seen[d.NormalizedPrefix] = struct{}{}
		out = append(out, d.NormalizedPrefix)
	}
	return out
}
