package parse

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexTimestamp_ISO8601String(t *testing.T) {
	var ft flexTimestamp
	require.NoError(t, json.Unmarshal([]byte(`"2026-01-01T12:00:00Z"`), &ft))
	assert.False(t, ft.zero)
	assert.Equal(t, 2026, ft.t.Year())
}

func TestFlexTimestamp_EpochMillisNumber(t *testing.T) {
	var ft flexTimestamp
	require.NoError(t, json.Unmarshal([]byte(`1767225600000`), &ft))
	assert.Equal(t, time.UnixMilli(1767225600000).UTC(), ft.t)
}

func TestFlexTimestamp_EpochMillisAsString(t *testing.T) {
	var ft flexTimestamp
	require.NoError(t, json.Unmarshal([]byte(`"1767225600000"`), &ft))
	assert.Equal(t, time.UnixMilli(1767225600000).UTC(), ft.t)
}

func TestFlexTimestamp_EmptyStringIsZero(t *testing.T) {
	var ft flexTimestamp
	require.NoError(t, json.Unmarshal([]byte(`""`), &ft))
	assert.True(t, ft.zero)
}

func TestFlexTimestamp_UnparsableIsZero(t *testing.T) {
	var ft flexTimestamp
	require.NoError(t, json.Unmarshal([]byte(`"not-a-timestamp"`), &ft))
	assert.True(t, ft.zero)
}

func TestStripBOM(t *testing.T) {
	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("{}")...)
	assert.Equal(t, []byte("{}"), stripBOM(withBOM))
	assert.Equal(t, []byte("{}"), stripBOM([]byte("{}")))
}
