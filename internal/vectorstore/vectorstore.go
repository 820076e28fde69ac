// Package vectorstore defines the consumed vector-store interface (§6) and
// a default embedded implementation backed by chromem-go.
package vectorstore

import "context"

// Point is one upsertable vector record: {id, vector, payload} (§4.11).
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// Store is the external collaborator the embedding/upsert pipeline (C10)
// depends on. Implementations must treat a status-400-equivalent response
// as terminal (never retried) per §4.10/§7d.
type Store interface {
	// EnsureCollection creates the named collection if absent, with the
	// given vector size, cosine distance, and a non-zero max-indexing-thread
	// hint (§6).
	EnsureCollection(ctx context.Context, collection string, vectorSize int, maxIndexingThreads int) error

	// Upsert writes a batch of points. wait, when true, blocks until the
	// store has indexed the batch (§4.11 "wait_for_index=true only on the
	// last batch").
	Upsert(ctx context.Context, collection string, points []Point, wait bool) error

	// Count returns the number of points in collection matching filter (a
	// store-specific filter expression; nil means unfiltered).
	Count(ctx context.Context, collection string, filter map[string]interface{}) (int, error)
}

// StatusError carries a store-reported HTTP-like status code so callers can
// recognise the terminal 400-class per §6/§7d.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string { return e.Message }

// IsTerminal reports whether a StatusError is in the 4xx range, which the
// spec defines as a never-retry terminal failure.
func IsTerminal(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.Code >= 400 && se.Code < 500
}
