package indexing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentkeep/convstate/internal/model"
)

func mkSkeleton(state *model.IndexingState, lastActivity time.Time) *model.ConversationSkeleton {
	return &model.ConversationSkeleton{
		TaskID:   "t1",
		Metadata: model.Metadata{LastActivity: lastActivity, IndexingState: state},
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func deterministicConfig() Config {
	cfg := DefaultConfig()
	cfg.Jitter = func() float64 { return 1.0 }
	return cfg
}

// S6: index_status=retry, retry_count=1, last_index_attempt=now-500ms,
// BASE=2s -> decision is skip with backoff_until ~= now+3500ms; after
// waiting past backoff_until, the decision flips to retry.
func TestDecide_S6_RetryBackoffStateMachine(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	lastAttempt := now.Add(-500 * time.Millisecond)

	state := &model.IndexingState{
		IndexStatus:      model.IndexStatusRetry,
		IndexRetryCount:  1,
		LastIndexAttempt: timePtr(lastAttempt),
	}
	sk := mkSkeleton(state, now)

	cfg := deterministicConfig()
	cfg.BaseBackoff = 2 * time.Second
	// Pin jitter inside its documented [0.85, 1.15) range so that
	// BASE * 2^retry_count * jitter = 2s * 2 * 0.875 = 3500ms exactly, giving
	// backoff_until = last_index_attempt + 3500ms = now + 3000ms.
	cfg.Jitter = func() float64 { return 0.875 }

	decision := Decide(sk, now, cfg)

	assert.False(t, decision.ShouldIndex)
	assert.Equal(t, ActionSkip, decision.Action)
	if assert.NotNil(t, decision.BackoffUntil) {
		wantUntil := lastAttempt.Add(3500 * time.Millisecond)
		assert.True(t, decision.BackoffUntil.Equal(wantUntil), "backoff_until = %s, want %s", decision.BackoffUntil, wantUntil)
	}

	// After the backoff window elapses, the same state flips to retry.
	past := lastAttempt.Add(3500 * time.Millisecond).Add(time.Millisecond)
	decision = Decide(sk, past, cfg)
	assert.True(t, decision.ShouldIndex)
	assert.Equal(t, ActionRetry, decision.Action)
}

func TestDecide_ForceReindexOverridesEverything(t *testing.T) {
	now := time.Now()
	state := &model.IndexingState{IndexStatus: model.IndexStatusFailed}
	sk := mkSkeleton(state, now)

	cfg := deterministicConfig()
	cfg.ForceReindex = true

	decision := Decide(sk, now, cfg)
	assert.True(t, decision.ShouldIndex)
	assert.Equal(t, ActionIndex, decision.Action)
}

func TestDecide_VersionMismatchReindexes(t *testing.T) {
	now := time.Now()
	state := &model.IndexingState{IndexStatus: model.IndexStatusSuccess, IndexVersion: 1}
	sk := mkSkeleton(state, now)

	cfg := deterministicConfig()
	cfg.CurrentIndexVersion = 2

	decision := Decide(sk, now, cfg)
	assert.True(t, decision.ShouldIndex)
	assert.Equal(t, ActionIndex, decision.Action)
}

func TestDecide_FailedStatusNeverReindexesUntilReset(t *testing.T) {
	now := time.Now()
	state := &model.IndexingState{IndexStatus: model.IndexStatusFailed}
	sk := mkSkeleton(state, now)

	decision := Decide(sk, now, deterministicConfig())
	assert.False(t, decision.ShouldIndex)
	assert.Equal(t, ActionSkip, decision.Action)
}

func TestDecide_RetryBudgetExhaustedSkips(t *testing.T) {
	now := time.Now()
	state := &model.IndexingState{
		IndexStatus:      model.IndexStatusRetry,
		IndexRetryCount:  DefaultMaxRetries,
		LastIndexAttempt: timePtr(now.Add(-time.Hour)),
	}
	sk := mkSkeleton(state, now)

	decision := Decide(sk, now, deterministicConfig())
	assert.False(t, decision.ShouldIndex)
	assert.Equal(t, ActionSkip, decision.Action)
}

func TestDecide_SuccessWithinTTLSkips(t *testing.T) {
	now := time.Now()
	next := now.Add(time.Hour)
	state := &model.IndexingState{IndexStatus: model.IndexStatusSuccess, NextReindexAfter: &next}
	sk := mkSkeleton(state, now.Add(-time.Minute))

	decision := Decide(sk, now, deterministicConfig())
	assert.False(t, decision.ShouldIndex)
	assert.Equal(t, ActionSkip, decision.Action)
}

func TestDecide_SuccessUnchangedContentSkips(t *testing.T) {
	now := time.Now()
	lastIndexed := now.Add(-time.Minute)
	state := &model.IndexingState{IndexStatus: model.IndexStatusSuccess, LastIndexedAt: &lastIndexed}
	sk := mkSkeleton(state, lastIndexed.Add(-time.Second))

	decision := Decide(sk, now, deterministicConfig())
	assert.False(t, decision.ShouldIndex)
	assert.Equal(t, ActionSkip, decision.Action)
}

func TestDecide_NoStateIsFirstTimeIndex(t *testing.T) {
	now := time.Now()
	sk := mkSkeleton(nil, now)

	decision := Decide(sk, now, deterministicConfig())
	assert.True(t, decision.ShouldIndex)
	assert.Equal(t, ActionIndex, decision.Action)
}

func TestMarkSuccess_AdvancesTTLAndClearsRetry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sk := mkSkeleton(&model.IndexingState{IndexStatus: model.IndexStatusRetry, IndexRetryCount: 2}, now)

	cfg := deterministicConfig()
	cfg.CurrentIndexVersion = 3
	MarkSuccess(sk, now, cfg)

	state := sk.Metadata.IndexingState
	assert.Equal(t, model.IndexStatusSuccess, state.IndexStatus)
	assert.Equal(t, 0, state.IndexRetryCount)
	assert.Equal(t, 3, state.IndexVersion)
	assert.True(t, state.NextReindexAfter.Equal(now.Add(cfg.DefaultTTL)))
}

func TestMarkFailure_PermanentSetsFailed(t *testing.T) {
	now := time.Now()
	sk := mkSkeleton(&model.IndexingState{IndexStatus: model.IndexStatusRetry}, now)

	MarkFailure(sk, now, deterministicConfig(), assertError{"bad request"}, true)

	assert.Equal(t, model.IndexStatusFailed, sk.Metadata.IndexingState.IndexStatus)
}

func TestMarkFailure_TransientIncrementsRetryCount(t *testing.T) {
	now := time.Now()
	sk := mkSkeleton(&model.IndexingState{IndexStatus: model.IndexStatusRetry, IndexRetryCount: 0}, now)

	MarkFailure(sk, now, deterministicConfig(), assertError{"timeout"}, false)

	state := sk.Metadata.IndexingState
	assert.Equal(t, model.IndexStatusRetry, state.IndexStatus)
	assert.Equal(t, 1, state.IndexRetryCount)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
