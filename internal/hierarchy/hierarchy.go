// Package hierarchy implements the two-pass hierarchy reconstruction engine
// (C7): Pass 1 indexes sub-task delegation prefixes; Pass 2 resolves each
// orphan task's effective parent against that index under strict validity
// constraints (§4.8).
package hierarchy

import (
	"sort"
	"strings"
	"time"

	"github.com/agentkeep/convstate/internal/model"
	"github.com/agentkeep/convstate/internal/radixindex"
)

// Mode selects the matching regime Pass 2 applies (§4.8, GLOSSARY).
type Mode int

const (
	// Strict requires an unambiguous exact normalised-prefix match.
	Strict Mode = iota
	// Permissive additionally allows similarity, metadata, and temporal
	// fallbacks when the strict match fails.
	Permissive
)

// Options tunes the engine's thresholds away from their spec defaults.
type Options struct {
	Mode               Mode
	MinConfidenceScore float64
	SimilarityThreshold float64
	TemporalWindow     time.Duration
	RootMinLength      int
}

// DefaultOptions returns the spec's default tuning (§4.8, §9 open questions).
func DefaultOptions() Options {
	return Options{
		Mode:                Strict,
		MinConfidenceScore:  0.3,
		SimilarityThreshold: 0.2,
		TemporalWindow:      5 * time.Minute,
		RootMinLength:       10,
	}
}

// Pass1Result summarises one Pass 1 run (§4.8).
type Pass1Result struct {
	Processed       int
	Parsed          int
	TotalInstructions int
	IndexSize       int
	Errors          []string
	WallTime        time.Duration
}

// Pass1 builds the instruction index from every skeleton's already-extracted
// ChildTaskInstructionPrefixes (produced by the skeleton builder running
// §4.5). A skeleton whose ProcessingState.Phase1Done is false is treated as
// unparsed: it is skipped and recorded in the result's Errors.
func Pass1(idx *radixindex.Index, skeletons []*model.ConversationSkeleton) Pass1Result {
	start := time.Now()
	result := Pass1Result{}

	ordered := sortedByTaskID(skeletons)
	for _, sk := range ordered {
		result.Processed++
		if !sk.ProcessingState.Phase1Done {
			result.Errors = append(result.Errors, sk.TaskID+": skeleton not yet built (phase1 incomplete)")
			continue
		}
		result.Parsed++
		for _, prefix := range sk.ChildTaskInstructionPrefixes {
			idx.Insert(prefix, radixindex.Payload{TaskID: sk.TaskID})
			result.TotalInstructions++
		}
	}
	result.IndexSize = idx.Len()
	result.WallTime = time.Since(start)
	return result
}

// Pass2Result summarises one Pass 2 run (§4.8).
type Pass2Result struct {
	Processed            int
	Resolved              int
	Unresolved             int
	AverageConfidence      float64
	ResolutionMethodCounts map[model.ResolutionMethod]int
	WallTime               time.Duration
}

// Pass2 resolves each skeleton's effective parent against idx, mutating the
// overlay fields of each skeleton in place. The slice need not be sorted:
// this function orders it by TaskID itself and builds an internal map for
// O(1) known()/created_at() lookups.
func Pass2(idx *radixindex.Index, skeletons []*model.ConversationSkeleton, opts Options) Pass2Result {
	start := time.Now()
	result := Pass2Result{ResolutionMethodCounts: map[model.ResolutionMethod]int{}}

	byID := make(map[string]*model.ConversationSkeleton, len(skeletons))
	for _, sk := range skeletons {
		byID[sk.TaskID] = sk
	}
	known := func(id string) bool {
		_, ok := byID[id]
		return ok
	}

	var confidenceSum float64
	ordered := sortedByTaskID(skeletons)

	for _, child := range ordered {
		result.Processed++

		if child.ParentTaskID != "" && known(child.ParentTaskID) {
			if parent := byID[child.ParentTaskID]; validate(parent, child, byID, 1.0) {
				result.Resolved++
				continue
			}
		}

		if isRoot(child, opts.RootMinLength) {
			child.IsRootTask = true
			child.ParentResolutionMethod = model.MethodRootDetected
			result.ResolutionMethodCounts[model.MethodRootDetected]++
			result.Resolved++
			continue
		}

		candidate, method, confidence := resolveCandidate(idx, child, byID, opts)
		if candidate == "" {
			result.Unresolved++
			continue
		}

		parent := byID[candidate]
		if !validate(parent, child, byID, confidence) || confidence < opts.MinConfidenceScore {
			result.Unresolved++
			continue
		}

		child.ReconstructedParentID = candidate
		child.ParentConfidence = confidence
		child.ParentResolutionMethod = method
		result.ResolutionMethodCounts[method]++
		result.Resolved++
		confidenceSum += confidence
	}

	if result.Resolved > 0 {
		result.AverageConfidence = confidenceSum / float64(result.Resolved)
	}
	result.WallTime = time.Since(start)
	return result
}

// isRoot implements the root-detection rule of §4.8: no truncated
// instruction, or one shorter than the minimum significant length.
func isRoot(child *model.ConversationSkeleton, minLength int) bool {
	return len(child.TruncatedInstruction) == 0 || len(child.TruncatedInstruction) < minLength
}

// resolveCandidate tries strict exact-prefix matching, then (in permissive
// mode) similarity, metadata, and temporal-proximity fallbacks, in order
// (§4.8).
func resolveCandidate(idx *radixindex.Index, child *model.ConversationSkeleton, byID map[string]*model.ConversationSkeleton, opts Options) (taskID string, method model.ResolutionMethod, confidence float64) {
	if taskID, ok := exactMatch(idx, child); ok {
		return taskID, model.MethodRadixExact, 1.0
	}
	if opts.Mode != Permissive {
		return "", model.MethodNone, 0
	}

	if taskID, similarity, ok := similarMatch(idx, child, byID, opts.SimilarityThreshold); ok {
		return taskID, model.MethodRadixSimilar, similarity
	}
	if taskID, ok := metadataMatch(child, byID); ok {
		return taskID, model.MethodMetadata, 0.5
	}
	if taskID, ok := temporalMatch(child, byID, opts.TemporalWindow); ok {
		return taskID, model.MethodTemporalProximity, 0.4
	}
	return "", model.MethodNone, 0
}

// exactMatch implements strict mode: accept iff the index holds exactly one
// distinct task_id other than the child itself.
func exactMatch(idx *radixindex.Index, child *model.ConversationSkeleton) (string, bool) {
	payloads, ok := idx.SearchExactPrefix(child.TruncatedInstruction)
	if !ok {
		return "", false
	}
	distinct := distinctTaskIDs(payloads, child.TaskID)
	if len(distinct) != 1 {
		return "", false
	}
	return distinct[0], true
}

// similarMatch iterates search_similar candidates by descending similarity,
// accepting the first that is not the child itself and is known.
func similarMatch(idx *radixindex.Index, child *model.ConversationSkeleton, byID map[string]*model.ConversationSkeleton, threshold float64) (string, float64, bool) {
	matches := idx.SearchSimilar(child.TruncatedInstruction, threshold)
	for _, match := range matches {
		for _, taskID := range distinctTaskIDs(match.Payloads, child.TaskID) {
			if _, ok := byID[taskID]; ok {
				return taskID, match.Similarity, true
			}
		}
	}
	return "", 0, false
}

// metadataMatch: any skeleton sharing child's workspace whose stored
// child_task_instruction_prefixes contains a prefix of child's instruction.
func metadataMatch(child *model.ConversationSkeleton, byID map[string]*model.ConversationSkeleton) (string, bool) {
	if child.Metadata.Workspace == "" {
		return "", false
	}
	var candidates []string
	for id, candidate := range byID {
		if id == child.TaskID || candidate.Metadata.Workspace != child.Metadata.Workspace {
			continue
		}
		for _, prefix := range candidate.ChildTaskInstructionPrefixes {
			if prefix != "" && strings.HasPrefix(child.TruncatedInstruction, prefix) {
				candidates = append(candidates, id)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

// temporalMatch: among same-workspace skeletons created strictly before
// child within window, the newest.
func temporalMatch(child *model.ConversationSkeleton, byID map[string]*model.ConversationSkeleton, window time.Duration) (string, bool) {
	if child.Metadata.Workspace == "" {
		return "", false
	}
	var best *model.ConversationSkeleton
	for id, candidate := range byID {
		if id == child.TaskID || candidate.Metadata.Workspace != child.Metadata.Workspace {
			continue
		}
		if !candidate.Metadata.CreatedAt.Before(child.Metadata.CreatedAt) {
			continue
		}
		if child.Metadata.CreatedAt.Sub(candidate.Metadata.CreatedAt) > window {
			continue
		}
		if best == nil || candidate.Metadata.CreatedAt.After(best.Metadata.CreatedAt) ||
			(candidate.Metadata.CreatedAt.Equal(best.Metadata.CreatedAt) && candidate.TaskID < best.TaskID) {
			best = candidate
		}
	}
	if best == nil {
		return "", false
	}
	return best.TaskID, true
}

// validate implements rules 1-4 of the candidate validation of §4.8 (known
// and distinct, temporal order, no cycle, matching workspace). The confidence
// argument is not consulted; the minimum-confidence rule is checked by Pass2.
func validate(parent, child *model.ConversationSkeleton, byID map[string]*model.ConversationSkeleton, confidence float64) bool {
	if parent == nil || parent.TaskID == child.TaskID {
		return false
	}
	if parent.Metadata.CreatedAt.After(child.Metadata.CreatedAt) {
		return false
	}
	if introducesCycle(parent, child, byID) {
		return false
	}
	if parent.Metadata.Workspace != "" && child.Metadata.Workspace != "" && parent.Metadata.Workspace != child.Metadata.Workspace {
		return false
	}
	return true
}

// introducesCycle walks upward from parent using reconstructed-then-recorded
// parent, iteratively (never recursively, §9), until it hits nil or finds
// child — which would close the loop.
func introducesCycle(parent, child *model.ConversationSkeleton, byID map[string]*model.ConversationSkeleton) bool {
	visited := make(map[string]struct{})
	current := parent
	for current != nil {
		if current.TaskID == child.TaskID {
			return true
		}
		if _, ok := visited[current.TaskID]; ok {
			// pre-existing cycle in recorded data; don't let it propagate
			// further, but this edge itself doesn't close a *new* loop.
			return false
		}
		visited[current.TaskID] = struct{}{}

		next := current.ReconstructedParentID
		if next == "" {
			next = current.ParentTaskID
		}
		if next == "" {
			break
		}
		current = byID[next]
	}
	return false
}

func distinctTaskIDs(payloads []radixindex.Payload, exclude string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range payloads {
		if p.TaskID == exclude {
			continue
		}
		if _, ok := seen[p.TaskID]; ok {
			continue
		}
		seen[p.TaskID] = struct{}{}
		out = append(out, p.TaskID)
	}
	return out
}

// sortedByTaskID returns skeletons ordered ascending by TaskID, the
// deterministic processing order both passes require (§4.8 "Batching &
// determinism").
func sortedByTaskID(skeletons []*model.ConversationSkeleton) []*model.ConversationSkeleton {
	out := make([]*model.ConversationSkeleton, len(skeletons))
	copy(out, skeletons)
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}
