// Package cache implements the skeleton cache (C12): a process-resident
// map of task_id → skeleton with an explicit freshness-refresh contract
// (§4.13).
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/viant/afs"

	"github.com/agentkeep/convstate/internal/detect"
	"github.com/agentkeep/convstate/internal/model"
	"github.com/agentkeep/convstate/internal/skeleton"
)

// Cache is a single-process, concurrency-safe map of task_id → skeleton.
// Concurrent readers are unconstrained; writers atomically replace whole
// skeletons (§4.13).
type Cache struct {
	mu        sync.RWMutex
	skeletons map[string]*model.ConversationSkeleton
	mtimes    map[string]time.Time

	detector *detect.Detector
	builder  *skeleton.Builder
	fs       afs.Service
}

// New builds an empty Cache backed by detector for directory discovery and
// builder for skeleton construction.
func New(fs afs.Service, detector *detect.Detector, builder *skeleton.Builder) *Cache {
	if fs == nil {
		fs = afs.New()
	}
	return &Cache{
		skeletons: make(map[string]*model.ConversationSkeleton),
		mtimes:    make(map[string]time.Time),
		detector:  detector,
		builder:   builder,
		fs:        fs,
	}
}

// Get returns the cached skeleton for id, if present.
func (c *Cache) Get(id string) (*model.ConversationSkeleton, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sk, ok := c.skeletons[id]
	return sk, ok
}

// Known reports whether id is a task present in this cache generation
// (GLOSSARY "known").
func (c *Cache) Known(id string) bool {
	_, ok := c.Get(id)
	return ok
}

// Put atomically replaces the cached skeleton for sk.TaskID.
func (c *Cache) Put(sk *model.ConversationSkeleton) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skeletons[sk.TaskID] = sk
}

// Range calls fn for every cached skeleton in an unspecified order; fn
// returning false stops the iteration early.
func (c *Cache) Range(fn func(*model.ConversationSkeleton) bool) {
	c.mu.RLock()
	snapshot := make([]*model.ConversationSkeleton, 0, len(c.skeletons))
	for _, sk := range c.skeletons {
		snapshot = append(snapshot, sk)
	}
	c.mu.RUnlock()

	for _, sk := range snapshot {
		if !fn(sk) {
			return
		}
	}
}

// Len reports the number of cached skeletons.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.skeletons)
}

// Reset discards every cached skeleton (§3.4 "destroyed only on explicit
// cache reset").
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skeletons = make(map[string]*model.ConversationSkeleton)
	c.mtimes = make(map[string]time.Time)
}

// EnsureFresh re-scans the detector's roots and rebuilds any skeleton whose
// source files changed (or that has never been built), guaranteeing any
// on-disk change since the previous call is reflected (§4.13). Implemented
// via the skeleton builder's own checksum comparison rather than an mtime
// scan, which gives the same freshness guarantee without trusting
// filesystem mtime granularity.
func (c *Cache) EnsureFresh(ctx context.Context) error {
	manifests, err := c.detector.Scan(ctx)
	if err != nil {
		return err
	}

	for _, manifest := range manifests {
		previous, _ := c.Get(manifest.TaskID)
		sk, err := c.builder.Build(ctx, manifest, previous, false)
		if err != nil {
			continue
		}
		c.Put(sk)
	}
	return nil
}
