package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkeep/convstate/internal/model"
)

func TestParseAgentExchange_BareArrayWithStringContent(t *testing.T) {
	data := []byte(`[
		{"role":"user","content":"hello","timestamp":"2026-01-01T00:00:00Z"},
		{"role":"assistant","content":"hi there","timestamp":1767225600000}
	]`)
	msgs, err := ParseAgentExchange(data)
	require.NoError(t, err)
	if assert.Len(t, msgs, 2) {
		assert.Equal(t, "hello", msgs[0].Content)
		assert.Equal(t, 0, msgs[0].OriginalIndex)
		assert.Equal(t, "hi there", msgs[1].Content)
	}
}

func TestParseAgentExchange_EnvelopeShape(t *testing.T) {
	data := []byte(`{"messages":[{"role":"user","content":"wrapped"}]}`)
	msgs, err := ParseAgentExchange(data)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "wrapped", msgs[0].Content)
}

func TestParseAgentExchange_PartsAreJoinedForContent(t *testing.T) {
	data := []byte(`[{"role":"assistant","content":[
		{"kind":"text","payload":"first"},
		{"kind":"tool_call","tool_name":"readFile","payload":{"path":"a.go"}},
		{"kind":"text","payload":"second"}
	]}]`)
	msgs, err := ParseAgentExchange(data)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "first second", msgs[0].Content)
	require.Len(t, msgs[0].Parts, 3)
	assert.Equal(t, "readFile", msgs[0].Parts[1].ToolName)
}

func TestParseAgentExchange_MalformedElementBecomesSyntheticError(t *testing.T) {
	data := []byte(`[{"role":"user","content":"ok"}, 42]`)
	msgs, err := ParseAgentExchange(data)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "[ERROR]")
}

func TestParseAgentExchange_UnrecognisedTopLevelShapeIsWholeFileError(t *testing.T) {
	_, err := ParseAgentExchange([]byte(`"just a string"`))
	assert.Error(t, err)
}

func TestParseAgentExchange_StripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`[{"role":"user","content":"bomful"}]`)...)
	msgs, err := ParseAgentExchange(data)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bomful", msgs[0].Content)
}
