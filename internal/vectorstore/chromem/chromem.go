// Package chromem adapts the embedded chromem-go database to the
// vectorstore.Store interface, serving as the module's default,
// zero-infrastructure vector store implementation (§6).
package chromem

import (
	"context"
	"fmt"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/agentkeep/convstate/internal/vectorstore"
)

// Store wraps an in-process chromem-go database. Vectors are supplied
// pre-computed by the embedding pipeline, so collections are created with an
// embedding function that rejects every call; chromem-go only invokes it for
// documents added without an explicit embedding.
type Store struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
}

// New returns a Store backed by an in-memory chromem-go database. persistPath,
// if non-empty, makes the database durable across process restarts.
func New(persistPath string) (*Store, error) {
	var db *chromem.DB
	var err error
	if persistPath != "" {
		db, err = chromem.NewPersistentDB(persistPath, false)
	} else {
		db = chromem.NewDB()
	}
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	return &Store{db: db, collections: make(map[string]*chromem.Collection)}, nil
}

func rejectingEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("chromem adapter: no precomputed embedding supplied for document")
}

// EnsureCollection implements vectorstore.Store. chromem-go collections have
// no configurable vector size or distance metric (it always uses cosine
// similarity over whatever dimensionality the first vector establishes), so
// vectorSize and maxIndexingThreads are accepted for interface compatibility
// and surfaced only as collection metadata.
func (s *Store) EnsureCollection(ctx context.Context, collection string, vectorSize int, maxIndexingThreads int) error {
	if _, ok := s.collections[collection]; ok {
		return nil
	}
	meta := map[string]string{
		"vector_size":           strconv.Itoa(vectorSize),
		"max_indexing_threads":  strconv.Itoa(maxIndexingThreads),
	}
	col, err := s.db.GetOrCreateCollection(collection, meta, rejectingEmbeddingFunc)
	if err != nil {
		return &vectorstore.StatusError{Code: 500, Message: err.Error()}
	}
	s.collections[collection] = col
	return nil
}

// Upsert implements vectorstore.Store. chromem-go has no native wait flag;
// AddDocuments is synchronous, so wait is accepted but has no additional
// effect beyond the call already having completed (§4.11 "treated as a
// configuration knob, not a correctness contract", §9 open questions).
func (s *Store) Upsert(ctx context.Context, collection string, points []vectorstore.Point, wait bool) error {
	col, ok := s.collections[collection]
	if !ok {
		return &vectorstore.StatusError{Code: 404, Message: "collection not found: " + collection}
	}

	docs := make([]chromem.Document, 0, len(points))
	for _, p := range points {
		docs = append(docs, chromem.Document{
			ID:        p.ID,
			Embedding: p.Vector,
			Metadata:  stringifyPayload(p.Payload),
		})
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return &vectorstore.StatusError{Code: 500, Message: err.Error()}
	}
	return nil
}

// Count implements vectorstore.Store.
func (s *Store) Count(ctx context.Context, collection string, filter map[string]interface{}) (int, error) {
	col, ok := s.collections[collection]
	if !ok {
		return 0, &vectorstore.StatusError{Code: 404, Message: "collection not found: " + collection}
	}
	if len(filter) == 0 {
		return col.Count(), nil
	}
	matched := 0
	where := stringifyPayload(filter)
	docs, err := col.Query(ctx, "", col.Count(), where, nil)
	if err != nil {
		return 0, &vectorstore.StatusError{Code: 500, Message: err.Error()}
	}
	matched = len(docs)
	return matched, nil
}

// stringifyPayload renders a sanitised payload (§4.11/P8) into the
// string-valued metadata map chromem-go stores alongside each document.
func stringifyPayload(payload map[string]interface{}) map[string]string {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
