package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkeep/convstate/internal/model"
)

func TestParseMarkdownTranscript_SplitsOnRoleMarkers(t *testing.T) {
	data := []byte("**User:** first line\nsecond line\n**Assistant:** the reply\n")
	msgs, lines := ParseMarkdownTranscript(data)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "first line\nsecond line", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "the reply", msgs[1].Content)
	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0])
	assert.Equal(t, 3, lines[1])
}

func TestParseMarkdownTranscript_NoMarkersReturnsNil(t *testing.T) {
	msgs, lines := ParseMarkdownTranscript([]byte("just plain text, no markers"))
	assert.Nil(t, msgs)
	assert.Nil(t, lines)
}

func TestParseMarkdownTranscript_CaseInsensitiveRole(t *testing.T) {
	data := []byte("**user:** lowercase marker\n")
	msgs, _ := ParseMarkdownTranscript(data)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
}
