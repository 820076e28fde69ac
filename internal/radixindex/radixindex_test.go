package radixindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex_ExactPrefix(t *testing.T) {
	idx := New()
	idx.Insert("Fix the flaky retry logic", Payload{TaskID: "parent-1"})

	payloads, ok := idx.SearchExactPrefix("Fix the flaky retry logic")
	assert.True(t, ok)
	if assert.Len(t, payloads, 1) {
		assert.Equal(t, "parent-1", payloads[0].TaskID)
	}

	_, ok = idx.SearchExactPrefix("Fix the flaky retry")
	assert.False(t, ok, "search_exact_prefix must not do longest-prefix matching")
}

func TestIndex_MultiplePayloadsPerPrefix(t *testing.T) {
	idx := New()
	idx.Insert("same prefix", Payload{TaskID: "a"})
	idx.Insert("same prefix", Payload{TaskID: "b"})

	payloads, ok := idx.SearchExactPrefix("same prefix")
	assert.True(t, ok)
	assert.Len(t, payloads, 2)
}

func TestIndex_SearchSimilar(t *testing.T) {
	idx := New()
	idx.Insert("Refactor the parser module for streaming", Payload{TaskID: "p1"})
	idx.Insert("Totally unrelated text about cooking recipes", Payload{TaskID: "p2"})

	matches := idx.SearchSimilar("Refactor the parser module for batching", 0.2)
	if assert.NotEmpty(t, matches) {
		assert.Equal(t, "p1", matches[0].Payloads[0].TaskID)
	}
}

func TestIndex_Len(t *testing.T) {
	idx := New()
	assert.Equal(t, 0, idx.Len())
	idx.Insert("a", Payload{TaskID: "x"})
	idx.Insert("b", Payload{TaskID: "y"})
	assert.Equal(t, 2, idx.Len())
}
