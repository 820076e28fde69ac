// Package embedpipeline implements the embedding/upsert pipeline (C10):
// chunk → sub-chunk → content-addressed cache → embed → sanitise → batched
// upsert through the rate limiter/circuit breaker guard (§4.11).
package embedpipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	ristretto "github.com/dgraph-io/ristretto/v2"

	"github.com/agentkeep/convstate/internal/ratelimit"
	"github.com/agentkeep/convstate/internal/vectorstore"
)

// Defaults mirror the spec's named constants (§4.11).
const (
	DefaultMaxChunkSize = 800
	DefaultCacheTTL      = 7 * 24 * time.Hour
	DefaultExpectedDim   = 1536
	DefaultWindowOps     = 100
	DefaultBatchMax      = 100
)

// Chunk is one granular unit extracted by the external chunker collaborator
// (§4.11 step 1); the pipeline only sees chunk text and a stable ID prefix.
type Chunk struct {
	ID   string
	Text string
}

// Embedder is the consumed embedding provider interface (§6):
// embed(model, input_text) -> vector[EXPECTED_DIM].
type Embedder interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// Options tunes the pipeline away from the spec's defaults.
type Options struct {
	MaxChunkSize int
	CacheTTL     time.Duration
	ExpectedDim  int
	WindowOps    int
	BatchMax     int
	Model        string
	Collection   string
	// AllowNullKeys lists payload keys for which a null value survives
	// sanitisation (§4.11 step 4; e.g. parent/root-task-id nulls).
	AllowNullKeys map[string]struct{}
}

// DefaultOptions returns the spec's default tuning.
func DefaultOptions() Options {
	return Options{
		MaxChunkSize: DefaultMaxChunkSize,
		CacheTTL:     DefaultCacheTTL,
		ExpectedDim:  DefaultExpectedDim,
		WindowOps:    DefaultWindowOps,
		BatchMax:     DefaultBatchMax,
	}
}

// cacheEntry pairs a cached vector with the time it was written, so that an
// entry older than CacheTTL is treated as a miss even though ristretto has
// not yet evicted it.
type cacheEntry struct {
	vector    []float32
	cachedAt  time.Time
}

// Pipeline runs chunking-to-upsert for one task's extracted chunks.
type Pipeline struct {
	embedder Embedder
	store    vectorstore.Store
	guard    *ratelimit.Guard
	cache    *ristretto.Cache[string, cacheEntry]
	opts     Options

	window      []time.Time
}

// New builds a Pipeline. cache may be nil, in which case a process-local
// ristretto cache is created with defaults sized for embedding-scale
// workloads.
func New(embedder Embedder, store vectorstore.Store, guard *ratelimit.Guard, cache *ristretto.Cache[string, cacheEntry], opts Options) (*Pipeline, error) {
	if cache == nil {
		c, err := ristretto.NewCache(&ristretto.Config[string, cacheEntry]{
			NumCounters: 1e7,
			MaxCost:     1 << 28,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("embedpipeline: create cache: %w", err)
		}
		cache = c
	}
	return &Pipeline{embedder: embedder, store: store, guard: guard, cache: cache, opts: opts}, nil
}

// EnsureCollection makes sure the destination collection exists in the
// backing store before the first upsert, sized for this pipeline's expected
// vector dimensionality (§4.11 step 5).
func (p *Pipeline) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	return p.store.EnsureCollection(ctx, collection, vectorSize, 1)
}

// SubChunks splits chunk text into pieces of at most MaxChunkSize characters
// (§4.11 step 1).
func (p *Pipeline) SubChunks(chunk Chunk) []string {
	maxSize := p.opts.MaxChunkSize
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	runes := []rune(chunk.Text)
	if len(runes) == 0 {
		return nil
	}
	var out []string
	for i := 0; i < len(runes); i += maxSize {
		end := i + maxSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// CacheKey computes the SHA-256 content-addressed key for a sub-chunk
// (§4.11 step 2).
func CacheKey(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Embed resolves a sub-chunk's vector, reusing a fresh cache entry when
// present or requesting one from the embedding provider and validating its
// shape (§4.11 step 2).
func (p *Pipeline) Embed(ctx context.Context, content string) ([]float32, error) {
	key := CacheKey(content)
	if entry, ok := p.cache.Get(key); ok {
		ttl := p.opts.CacheTTL
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		if time.Since(entry.cachedAt) < ttl {
			return entry.vector, nil
		}
	}

	if err := p.awaitWindow(ctx); err != nil {
		return nil, err
	}

	vector, err := p.embedder.Embed(ctx, p.opts.Model, content)
	if err != nil {
		return nil, fmt.Errorf("embed sub-chunk: %w", err)
	}
	if err := validateVector(vector, p.expectedDim()); err != nil {
		return nil, err
	}

	p.cache.SetWithTTL(key, cacheEntry{vector: vector, cachedAt: time.Now().UTC()}, int64(len(vector)*4), p.opts.CacheTTL)
	p.cache.Wait()
	return vector, nil
}

func (p *Pipeline) expectedDim() int {
	if p.opts.ExpectedDim > 0 {
		return p.opts.ExpectedDim
	}
	return DefaultExpectedDim
}

func validateVector(vector []float32, expectedDim int) error {
	if len(vector) != expectedDim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vector), expectedDim)
	}
	for _, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("embedding contains NaN/Inf")
		}
	}
	return nil
}

// awaitWindow enforces the sliding-window operation budget of §4.11 step 3:
// sleeps until the oldest call in the current window falls outside it, if
// the window is already full.
func (p *Pipeline) awaitWindow(ctx context.Context) error {
	limit := p.opts.WindowOps
	if limit <= 0 {
		limit = DefaultWindowOps
	}
	now := time.Now()
	cutoff := now.Add(-time.Minute)

	kept := p.window[:0]
	for _, t := range p.window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	p.window = kept

	if len(p.window) >= limit {
		sleepUntil := p.window[0].Add(time.Minute)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(sleepUntil)):
		}
	}
	p.window = append(p.window, time.Now())
	return nil
}

// Sanitize implements the §4.11 step 4 / §8.1 P8 payload sanitiser: it
// removes undefined (absent from the map by construction) and empty-string
// fields, removes null except for the configured allow-list, and preserves
// 0, false, "0"-strings and arrays verbatim.
func Sanitize(payload map[string]interface{}, allowNullKeys map[string]struct{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if v == nil {
			if _, allowed := allowNullKeys[k]; allowed {
				out[k] = nil
			}
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// UpsertBatch writes points in batches of at most BatchMax, setting
// wait_for_index=true only on the final batch, through the rate
// limiter/circuit breaker guard (§4.11 step 5).
func (p *Pipeline) UpsertBatch(ctx context.Context, collection string, points []vectorstore.Point) error {
	batchMax := p.opts.BatchMax
	if batchMax <= 0 {
		batchMax = DefaultBatchMax
	}
	for i := 0; i < len(points); i += batchMax {
		end := i + batchMax
		if end > len(points) {
			end = len(points)
		}
		batch := points[i:end]
		isLast := end == len(points)

		_, err := p.guard.Do(ctx, func(ctx context.Context) (interface{}, error) {
			upsertErr := p.store.Upsert(ctx, collection, batch, isLast)
			if upsertErr != nil && vectorstore.IsTerminal(upsertErr) {
				return nil, &ratelimit.TerminalError{Err: upsertErr}
			}
			return nil, upsertErr
		})
		if err != nil {
			return err
		}
	}
	return nil
}
