// Package indexing implements the indexing decision service (C8): a
// per-skeleton idempotence/retry state machine deciding whether a skeleton's
// embeddings need to be (re)computed (§4.9).
package indexing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/agentkeep/convstate/internal/model"
)

// Action is the decision the service emits for one skeleton.
type Action string

const (
	ActionIndex Action = "index"
	ActionSkip  Action = "skip"
	ActionRetry Action = "retry"
)

// Decision is the output of Decide (§4.9).
type Decision struct {
	ShouldIndex  bool
	Action       Action
	Reason       string
	BackoffUntil *time.Time
}

// Defaults mirror the spec's named constants (§4.9).
const (
	DefaultMaxRetries = 3
	DefaultTTL        = 24 * time.Hour
	DefaultBaseBackoff = 2 * time.Second
)

// Config tunes the decision service away from its spec defaults.
type Config struct {
	ForceReindex       bool
	CurrentIndexVersion int
	MaxRetries         int
	BaseBackoff        time.Duration
	DefaultTTL         time.Duration
	// Jitter produces a value in [0.85, 1.15); overridable for deterministic
	// tests.
	Jitter func() float64
}

// DefaultConfig returns the spec's default tuning.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
		DefaultTTL:  DefaultTTL,
		Jitter:      func() float64 { return 0.85 + rand.Float64()*0.30 },
	}
}

// Decide evaluates the seven ordered rules of §4.9 for one skeleton against
// the current clock `now`.
func Decide(sk *model.ConversationSkeleton, now time.Time, cfg Config) Decision {
	if cfg.Jitter == nil {
		cfg.Jitter = func() float64 { return 1.0 }
	}

	if cfg.ForceReindex {
		return Decision{ShouldIndex: true, Action: ActionIndex, Reason: "force_reindex flag set"}
	}

	state := sk.Metadata.IndexingState
	if state == nil {
		return Decision{ShouldIndex: true, Action: ActionIndex, Reason: "no indexing state: first-time index"}
	}

	if state.IndexVersion != cfg.CurrentIndexVersion {
		return Decision{ShouldIndex: true, Action: ActionIndex, Reason: "index version mismatch"}
	}

	switch state.IndexStatus {
	case model.IndexStatusFailed:
		return Decision{ShouldIndex: false, Action: ActionSkip, Reason: "permanent failure"}

	case model.IndexStatusRetry:
		if state.IndexRetryCount >= cfg.MaxRetries {
			return Decision{ShouldIndex: false, Action: ActionSkip, Reason: "retry budget exhausted"}
		}
		backoff := backoffFor(cfg, state.IndexRetryCount)
		lastAttempt := time.Time{}
		if state.LastIndexAttempt != nil {
			lastAttempt = *state.LastIndexAttempt
		}
		until := lastAttempt.Add(backoff)
		if now.Before(until) {
			return Decision{ShouldIndex: false, Action: ActionSkip, Reason: "backoff not yet elapsed", BackoffUntil: &until}
		}
		return Decision{ShouldIndex: true, Action: ActionRetry, Reason: "backoff elapsed"}

	case model.IndexStatusSuccess:
		if state.NextReindexAfter != nil && now.Before(*state.NextReindexAfter) {
			return Decision{ShouldIndex: false, Action: ActionSkip, Reason: "within TTL"}
		}
		if state.LastIndexedAt != nil && !sk.Metadata.LastActivity.After(*state.LastIndexedAt) {
			return Decision{ShouldIndex: false, Action: ActionSkip, Reason: "unchanged content"}
		}
	}

	return Decision{ShouldIndex: true, Action: ActionIndex, Reason: "default"}
}

// backoffFor computes backoff = BASE * 2^retry_count * jitter (§4.9 rule 4).
func backoffFor(cfg Config, retryCount int) time.Duration {
	multiplier := 1 << retryCount
	base := float64(cfg.BaseBackoff) * float64(multiplier) * cfg.Jitter()
	return time.Duration(base)
}

// MarkSuccess applies §4.9's post-success state transition.
func MarkSuccess(sk *model.ConversationSkeleton, now time.Time, cfg Config) {
	state := ensureState(sk)
	state.LastIndexedAt = timePtr(now)
	state.IndexStatus = model.IndexStatusSuccess
	state.IndexVersion = cfg.CurrentIndexVersion
	next := now.Add(cfg.DefaultTTL)
	state.NextReindexAfter = &next
	state.IndexError = ""
	state.IndexRetryCount = 0
}

// MarkFailure applies §4.9's post-failure state transition.
func MarkFailure(sk *model.ConversationSkeleton, now time.Time, cfg Config, err error, isPermanent bool) {
	state := ensureState(sk)
	state.LastIndexAttempt = timePtr(now)
	state.IndexRetryCount++
	if err != nil {
		state.IndexError = err.Error()
	} else {
		state.IndexError = fmt.Sprintf("indexing failed at %s", now.Format(time.RFC3339))
	}
	if isPermanent || state.IndexRetryCount >= cfg.MaxRetries {
		state.IndexStatus = model.IndexStatusFailed
		return
	}
	state.IndexStatus = model.IndexStatusRetry
}

func ensureState(sk *model.ConversationSkeleton) *model.IndexingState {
	if sk.Metadata.IndexingState == nil {
		sk.Metadata.IndexingState = &model.IndexingState{}
	}
	return sk.Metadata.IndexingState
}

func timePtr(t time.Time) *time.Time {
	return &t
}
