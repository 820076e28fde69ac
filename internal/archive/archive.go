// Package archive implements the archive writer/reader (C13): a canonical,
// version-tagged, gzip-compressed JSON format for cross-machine transport of
// a task's skeleton and truncated message history (§4.14).
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/viant/afs"
	"github.com/viant/afs/url"

	"github.com/agentkeep/convstate/internal/model"
)

// SchemaVersion is the archive format's version tag (§6).
const SchemaVersion = 1

// DefaultMaxMessageSize is the per-message truncation ceiling (§4.14, §3.1).
const DefaultMaxMessageSize = 10 * 1024

// TruncationMarker is appended to a message body truncated by Write.
const TruncationMarker = "...[truncated]"

// Writer produces archive files under a base directory, one sub-directory
// per machine_id (§4.14).
type Writer struct {
	fs      afs.Service
	baseDir string

	maxMessageSize int
}

// NewWriter returns a Writer rooted at baseDir.
func NewWriter(fs afs.Service, baseDir string) *Writer {
	if fs == nil {
		fs = afs.New()
	}
	return &Writer{fs: fs, baseDir: baseDir, maxMessageSize: DefaultMaxMessageSize}
}

// Write serialises sk and messages into an ArchivedTask, truncating each
// message body to maxMessageSize, then gzip-compresses the JSON and stores
// it at {baseDir}/{machineID}/{taskID}.json.gz.
func (w *Writer) Write(ctx context.Context, machineID, hostIdentifier string, sk *model.ConversationSkeleton, messages []model.Message) error {
	archived := model.ArchivedTask{
		Version:        SchemaVersion,
		TaskID:         sk.TaskID,
		MachineID:      machineID,
		HostIdentifier: hostIdentifier,
		ArchivedAt:     time.Now().UTC(),
		Metadata:       sk.Metadata,
		Messages:       make([]model.ArchivedMessage, 0, len(messages)),
	}

	maxSize := w.maxMessageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	for _, m := range messages {
		content := m.Content
		truncated := false
		if len(content) > maxSize {
			cut := maxSize - len(TruncationMarker)
			if cut < 0 {
				cut = 0
			}
			content = content[:cut] + TruncationMarker
			truncated = true
		}
		archived.Messages = append(archived.Messages, model.ArchivedMessage{
			Role:      m.Role,
			Content:   content,
			Timestamp: m.Timestamp,
			Truncated: truncated,
		})
	}

	payload, err := json.Marshal(archived)
	if err != nil {
		return fmt.Errorf("archive: marshal task %s: %w", sk.TaskID, err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return fmt.Errorf("archive: gzip task %s: %w", sk.TaskID, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("archive: close gzip writer: %w", err)
	}

	dest := url.Join(w.baseDir, machineID, sk.TaskID+".json.gz")
	return w.fs.Upload(ctx, dest, 0644, bytes.NewReader(buf.Bytes()))
}

// Reader scans a shared base directory for archived tasks across machine
// sub-directories.
type Reader struct {
	fs      afs.Service
	baseDir string
}

// NewReader returns a Reader rooted at baseDir.
func NewReader(fs afs.Service, baseDir string) *Reader {
	if fs == nil {
		fs = afs.New()
	}
	return &Reader{fs: fs, baseDir: baseDir}
}

// Read returns the first archived copy of taskID found across machine
// sub-directories of baseDir (§4.14 "returns the first hit").
func (r *Reader) Read(ctx context.Context, taskID string) (*model.ArchivedTask, error) {
	machines, err := r.fs.List(ctx, r.baseDir)
	if err != nil {
		return nil, fmt.Errorf("archive: list base dir: %w", err)
	}

	for _, machine := range machines {
		if !machine.IsDir() {
			continue
		}
		path := url.Join(r.baseDir, machine.Name(), taskID+".json.gz")
		data, err := r.fs.DownloadWithURL(ctx, path)
		if err != nil {
			continue
		}
		archived, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("archive: decode %s: %w", path, err)
		}
		return archived, nil
	}
	return nil, fmt.Errorf("archive: task %s not found under %s", taskID, r.baseDir)
}

func decode(data []byte) (*model.ArchivedTask, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, err
	}

	var archived model.ArchivedTask
	if err := json.Unmarshal(raw, &archived); err != nil {
		return nil, err
	}
	return &archived, nil
}
