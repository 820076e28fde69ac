package skeleton

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/agentkeep/convstate/internal/detect"
)

func upload(t *testing.T, fs afs.Service, path, content string) {
	t.Helper()
	require.NoError(t, fs.Upload(context.Background(), path, 0o644, strings.NewReader(content)))
}

func TestBuilder_Build_BasicSkeleton(t *testing.T) {
	fs := afs.New()
	ctx := context.Background()
	dir := "mem://localhost/tasks/abcdef0123"

	upload(t, fs, dir+"/"+detect.AgentExchangeFile, `[
		{"role":"user","content":"Please investigate the flaky retry logic in the uploader","timestamp":"2026-01-01T00:00:00Z"},
		{"role":"assistant","content":"done <attempt_completion>","timestamp":"2026-01-01T00:01:00Z"}
	]`)
	upload(t, fs, dir+"/"+detect.UIEventFile, `[]`)

	manifest := detect.Manifest{TaskID: "abcdef0123", DirectoryPath: dir, HasAgentExchange: true, HasUIEvents: true}

	b := New(fs)
	sk, err := b.Build(ctx, manifest, nil, false)
	require.NoError(t, err)

	assert.Equal(t, "abcdef0123", sk.TaskID)
	assert.Contains(t, sk.TruncatedInstruction, "investigate the flaky retry logic")
	assert.True(t, sk.ProcessingState.Phase1Done)
	assert.Len(t, sk.Sequence, 2)
	assert.NotEmpty(t, sk.SourceFileChecksums)
}

func TestBuilder_Build_SkipsRebuildWhenChecksumsMatch(t *testing.T) {
	fs := afs.New()
	ctx := context.Background()
	dir := "mem://localhost/tasks/ffeeaa9988"

	upload(t, fs, dir+"/"+detect.AgentExchangeFile, `[{"role":"user","content":"Add retry support to the upload pipeline"}]`)
	manifest := detect.Manifest{TaskID: "ffeeaa9988", DirectoryPath: dir, HasAgentExchange: true}

	b := New(fs)
	first, err := b.Build(ctx, manifest, nil, false)
	require.NoError(t, err)

	second, err := b.Build(ctx, manifest, first, false)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestBuilder_Build_ForceRebuildIgnoresChecksums(t *testing.T) {
	fs := afs.New()
	ctx := context.Background()
	dir := "mem://localhost/tasks/1122334455"

	upload(t, fs, dir+"/"+detect.AgentExchangeFile, `[{"role":"user","content":"Write unit tests for the hierarchy package"}]`)
	manifest := detect.Manifest{TaskID: "1122334455", DirectoryPath: dir, HasAgentExchange: true}

	b := New(fs)
	first, err := b.Build(ctx, manifest, nil, false)
	require.NoError(t, err)

	second, err := b.Build(ctx, manifest, first, true)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestBuilder_Build_WorkspaceFromMetadata(t *testing.T) {
	fs := afs.New()
	ctx := context.Background()
	dir := "mem://localhost/tasks/9988776655"

	upload(t, fs, dir+"/"+detect.AgentExchangeFile, `[{"role":"user","content":"Index the new documents"}]`)
	upload(t, fs, dir+"/"+detect.MetadataFile, `{"workspace":"/home/dev/project","mode":"code","title":"Custom title"}`)
	manifest := detect.Manifest{TaskID: "9988776655", DirectoryPath: dir, HasAgentExchange: true, HasMetadata: true}

	b := New(fs)
	sk, err := b.Build(ctx, manifest, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/project", sk.Metadata.Workspace)
	assert.Equal(t, "code", sk.Metadata.Mode)
	assert.Equal(t, "Custom title", sk.Metadata.Title)
}

func TestBuilder_Build_WorkspaceFromCWDBody(t *testing.T) {
	fs := afs.New()
	ctx := context.Background()
	dir := "mem://localhost/tasks/5566778899"

	upload(t, fs, dir+"/"+detect.AgentExchangeFile, `[{"role":"user","content":"Current working directory: /srv/app\nDo the thing"}]`)
	manifest := detect.Manifest{TaskID: "5566778899", DirectoryPath: dir, HasAgentExchange: true}

	b := New(fs)
	sk, err := b.Build(ctx, manifest, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "/srv/app", sk.Metadata.Workspace)
}

func TestBuilder_Build_ChildPrefixesExtractedFromUIEvents(t *testing.T) {
	fs := afs.New()
	ctx := context.Background()
	dir := "mem://localhost/tasks/aabbccddee"

	upload(t, fs, dir+"/"+detect.AgentExchangeFile, `[{"role":"user","content":"Do the parent task"}]`)
	upload(t, fs, dir+"/"+detect.UIEventFile, `[{"kind":"ask","sub_kind":"tool","text":"{\"tool\":\"newTask\",\"mode\":\"code\",\"content\":\"Refactor the radix index insertion path for speed\"}"}]`)
	manifest := detect.Manifest{TaskID: "aabbccddee", DirectoryPath: dir, HasAgentExchange: true, HasUIEvents: true}

	b := New(fs)
	sk, err := b.Build(ctx, manifest, nil, false)
	require.NoError(t, err)
	require.Len(t, sk.ChildTaskInstructionPrefixes, 1)
	assert.Contains(t, sk.ChildTaskInstructionPrefixes[0], "Refactor the radix index")
}

func TestBuilder_Build_MalformedAgentExchangeRecordsError(t *testing.T) {
	fs := afs.New()
	ctx := context.Background()
	dir := "mem://localhost/tasks/0099887766"

	upload(t, fs, dir+"/"+detect.AgentExchangeFile, `not json at all`)
	manifest := detect.Manifest{TaskID: "0099887766", DirectoryPath: dir, HasAgentExchange: true}

	b := New(fs)
	sk, err := b.Build(ctx, manifest, nil, false)
	require.NoError(t, err)
	assert.NotEmpty(t, sk.ProcessingState.Errors)
}
