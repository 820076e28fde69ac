// Package model defines the core entities of the conversation state
// manager: the raw events parsed off disk, the classified items derived
// from them, and the conversation skeleton that aggregates both.
package model

import "time"

// Role identifies the originator of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartKind identifies the shape of a ContentPart.
type PartKind string

const (
	PartText       PartKind = "text"
	PartToolUse    PartKind = "tool_use"
	PartToolResult PartKind = "tool_result"
)

// ContentPart is one typed fragment of a Message's content when the content
// is not a bare string (§3.1).
type ContentPart struct {
	Kind     PartKind    `json:"kind"`
	ToolName string      `json:"toolName,omitempty"`
	Payload  interface{} `json:"payload"`
}

// Message is a single role-tagged entry from the agent-exchange log.
// Content is either a string or a slice of ContentPart; Parts is non-nil
// only in the latter case.
type Message struct {
	Role      Role          `json:"role"`
	Content   string        `json:"content,omitempty"`
	Parts     []ContentPart `json:"parts,omitempty"`
	Timestamp time.Time     `json:"timestamp"`

	// OriginalIndex is the zero-based position of this message within its
	// source file, used for stable tie-breaking (I8).
	OriginalIndex int `json:"originalIndex"`
}

// UIKind identifies the top-level shape of a UIEvent.
type UIKind string

const (
	UIAsk UIKind = "ask"
	UISay UIKind = "say"
)

// UIEvent is a single entry from the UI-event log.
type UIEvent struct {
	Kind         UIKind    `json:"kind"`
	SubKind      string    `json:"subKind"`
	Text         string    `json:"text"`
	TimestampMs  int64     `json:"timestampMs"`
	Timestamp    time.Time `json:"-"`
	OriginalIndex int      `json:"originalIndex"`
}

// Tag classifies a Message/UIEvent pair into one of the canonical content
// categories (§4.2).
type Tag string

const (
	TagUserMessage         Tag = "user_message"
	TagError               Tag = "error"
	TagContextCondensation Tag = "context_condensation"
	TagNewInstructions     Tag = "new_instructions"
	TagToolCall            Tag = "tool_call"
	TagToolResult          Tag = "tool_result"
	TagCompletion          Tag = "completion"
)

// Actor is the normalised originator of a ClassifiedItem.
type Actor string

const (
	ActorUser      Actor = "user"
	ActorAssistant Actor = "assistant"
)

// ResultKind refines a TagToolResult item, when determinable.
type ResultKind string

// ClassifiedItem is one entry of the canonical event sequence produced by
// the content classifier (§4.2, invariant I9).
type ClassifiedItem struct {
	Actor         Actor      `json:"actor"`
	Tag           Tag        `json:"tag"`
	Content       string     `json:"content"`
	Timestamp     time.Time  `json:"timestamp"`
	OriginalIndex int        `json:"originalIndex"`
	LineNumber    int        `json:"lineNumber,omitempty"`
	ToolName      string     `json:"toolName,omitempty"`
	ResultKind    ResultKind `json:"resultKind,omitempty"`
}

// ResolutionMethod records how a task's effective parent was determined in
// Pass 2 of the hierarchy reconstruction engine (§4.8).
type ResolutionMethod string

const (
	MethodNone              ResolutionMethod = ""
	MethodRootDetected      ResolutionMethod = "root_detected"
	MethodRadixExact        ResolutionMethod = "radix_tree_exact"
	MethodRadixSimilar      ResolutionMethod = "radix_tree"
	MethodMetadata          ResolutionMethod = "metadata"
	MethodTemporalProximity ResolutionMethod = "temporal_proximity"
)

// IndexStatus is the terminal/transient classification of a skeleton's
// embedding indexing state (§3.1, §4.9).
type IndexStatus string

const (
	IndexStatusUnset   IndexStatus = ""
	IndexStatusSuccess IndexStatus = "success"
	IndexStatusRetry   IndexStatus = "retry"
	IndexStatusFailed  IndexStatus = "failed"
)

// IndexingState is the persisted, per-skeleton idempotence bookkeeping
// consumed and mutated by the indexing decision service (C8) and the
// embedding pipeline (C10).
type IndexingState struct {
	LastIndexedAt     *time.Time  `json:"lastIndexedAt,omitempty"`
	NextReindexAfter  *time.Time  `json:"nextReindexAfter,omitempty"`
	IndexStatus       IndexStatus `json:"indexStatus,omitempty"`
	IndexError        string      `json:"indexError,omitempty"`
	IndexRetryCount   int         `json:"indexRetryCount,omitempty"`
	LastIndexAttempt  *time.Time  `json:"lastIndexAttempt,omitempty"`
	IndexVersion      int         `json:"indexVersion,omitempty"`
}

// Metadata aggregates the facts a skeleton's builder derives about a task
// directory that are not themselves part of the event sequence (§3.1).
type Metadata struct {
	CreatedAt     time.Time      `json:"createdAt"`
	LastActivity  time.Time      `json:"lastActivity"`
	Title         string         `json:"title,omitempty"`
	Workspace     string         `json:"workspace,omitempty"`
	Mode          string         `json:"mode,omitempty"`
	MessageCount  int            `json:"messageCount"`
	ActionCount   int            `json:"actionCount"`
	TotalSize     int64          `json:"totalSize"`
	DataSource    string         `json:"dataSource"`
	IndexingState *IndexingState `json:"indexingState,omitempty"`
}

// ProcessingState tracks the bookkeeping the skeleton builder and the
// hierarchy engine need to decide whether (re)work is necessary (§3.1, §3.3).
type ProcessingState struct {
	Phase1Done      bool      `json:"phase1Done"`
	Phase2Done      bool      `json:"phase2Done"`
	LastProcessedAt time.Time `json:"lastProcessedAt,omitempty"`
	Errors          []string  `json:"errors,omitempty"`
}

// ConversationSkeleton is the canonical per-task unit of state (§3.1).
type ConversationSkeleton struct {
	TaskID                     string           `json:"taskId"`
	ParentTaskID               string           `json:"parentTaskId,omitempty"`
	TruncatedInstruction       string           `json:"truncatedInstruction,omitempty"`
	ChildTaskInstructionPrefixes []string       `json:"childTaskInstructionPrefixes,omitempty"`
	Sequence                   []ClassifiedItem `json:"sequence,omitempty"`
	Metadata                   Metadata         `json:"metadata"`

	ProcessingState       ProcessingState   `json:"processingState"`
	SourceFileChecksums   map[string]string `json:"sourceFileChecksums,omitempty"`

	// Reconstruction overlay (§3.1). ReconstructedParentID and IsRootTask are
	// included in the JSON form; ParentConfidence and ParentResolutionMethod
	// are not, and are re-derived on each Pass 2 run.
	ReconstructedParentID  string           `json:"reconstructedParentId,omitempty"`
	ParentConfidence       float64          `json:"-"`
	ParentResolutionMethod ResolutionMethod `json:"-"`
	IsRootTask             bool             `json:"isRootTask,omitempty"`
}

// IsCompleted reports whether the last assistant event in Sequence carries a
// completion marker (derived field, §3.1).
func (s *ConversationSkeleton) IsCompleted() bool {
	for i := len(s.Sequence) - 1; i >= 0; i-- {
		item := s.Sequence[i]
		if item.Actor != ActorAssistant {
			continue
		}
		return item.Tag == TagCompletion
	}
	return false
}

// EffectiveParent returns the reconstructed parent if present, else the
// recorded parent if it identifies a known task, else "" (GLOSSARY).
func (s *ConversationSkeleton) EffectiveParent(known func(id string) bool) string {
	if s.ReconstructedParentID != "" {
		return s.ReconstructedParentID
	}
	if s.ParentTaskID != "" && known != nil && known(s.ParentTaskID) {
		return s.ParentTaskID
	}
	return ""
}

// ArchivedMessage is a truncated message retained in an ArchivedTask (§3.1).
type ArchivedMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Truncated bool      `json:"truncated,omitempty"`
}

// ArchivedTask is the immutable, content-addressable record written by the
// archive writer (§4.14).
type ArchivedTask struct {
	Version         int               `json:"version"`
	TaskID          string            `json:"taskId"`
	MachineID       string            `json:"machineId"`
	HostIdentifier  string            `json:"hostIdentifier"`
	ArchivedAt      time.Time         `json:"archivedAt"`
	Metadata        Metadata          `json:"metadata"`
	Messages        []ArchivedMessage `json:"messages"`
}
