// Package radixindex implements the instruction index (C6): a radix tree
// over normalised instruction prefixes, supporting exact-prefix lookup for
// strict-mode hierarchy reconstruction and similarity lookup for
// permissive-mode reconstruction (§4.7).
package radixindex

import (
	"sort"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix/v2"
)

// Payload is the value recorded alongside a stored prefix: the delegating
// task and whatever extra context the caller wants to carry through a
// lookup (e.g. the delegation's canonical mode).
type Payload struct {
	TaskID string
	Mode   string
}

// Match is one search result: the stored prefix, its payloads, and (for
// search_similar) the similarity score against the query.
type Match struct {
	Prefix     string
	Payloads   []Payload
	Similarity float64
}

// Index is a concurrency-safe wrapper around an immutable radix tree,
// tolerating multiple payloads per terminal node (§4.7).
type Index struct {
	mu   sync.RWMutex
	tree *iradix.Tree[[]Payload]
}

// New returns an empty instruction index.
func New() *Index {
	return &Index{tree: iradix.New[[]Payload]()}
}

// Insert records payload under the given normalised prefix, appending to any
// payloads already stored there (O(|prefix|)).
func (idx *Index) Insert(prefix string, payload Payload) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := []byte(prefix)
	existing, _ := idx.tree.Get(key)
	updated := append(append([]Payload{}, existing...), payload)
	idx.tree, _, _ = idx.tree.Insert(key, updated)
}

// SearchExactPrefix returns the payloads stored under a prefix that equals
// query exactly, not a longest-prefix match (used in strict mode, §4.8).
func (idx *Index) SearchExactPrefix(query string) ([]Payload, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	payloads, ok := idx.tree.Get([]byte(query))
	if !ok {
		return nil, false
	}
	return append([]Payload{}, payloads...), true
}

// SearchSimilar returns every stored prefix whose longest-common-prefix with
// query is at least threshold * max(|stored|, |query|) characters long,
// sorted by descending similarity (used in permissive mode, §4.8).
func (idx *Index) SearchSimilar(query string, threshold float64) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var matches []Match
	idx.tree.Root().Walk(func(key []byte, payloads []Payload) bool {
		stored := string(key)
		lcp := longestCommonPrefix(stored, query)
		denom := maxInt(len(stored), len(query))
		if denom == 0 {
			return false
		}
		similarity := float64(lcp) / float64(denom)
		if similarity >= threshold {
			matches = append(matches, Match{
				Prefix:     stored,
				Payloads:   append([]Payload{}, payloads...),
				Similarity: similarity,
			})
		}
		return false
	})

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Prefix < matches[j].Prefix
	})
	return matches
}

// Len reports the number of distinct stored prefixes.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

func longestCommonPrefix(a, b string) int {
	n := minInt(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
