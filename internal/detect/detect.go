// Package detect implements the storage detector (C1): it enumerates task
// directories under one or more roots without reading any file bodies.
package detect

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
)

// File names recognised inside a task directory (§6).
const (
	AgentExchangeFile = "agent-exchange.json"
	UIEventFile       = "ui-events.json"
	MetadataFile      = "task_metadata.json"
)

// taskIDPattern matches the opaque, UUID-shaped task-id directory names the
// spec describes; it is deliberately permissive (any ASCII letters and
// digits, dash, underscore; at least 8 characters) since not every ingested
// store uses canonical UUIDs.
var taskIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{7,}$`)

// Manifest describes the file-set found for one task directory, without
// having read any of their contents.
type Manifest struct {
	TaskID          string
	DirectoryPath   string
	HasAgentExchange bool
	HasUIEvents      bool
	HasMetadata      bool
}

// FilePath joins the manifest's directory with name using the afs URL join
// so callers can pass the result straight to afs.Service.
func (m Manifest) FilePath(name string) string {
	return url.Join(m.DirectoryPath, name)
}

// Detector enumerates task directories under a set of roots.
type Detector struct {
	fs    afs.Service
	roots []string
}

// New creates a Detector over the given roots. An empty roots slice is
// valid; callers add roots with AddRoot before calling Scan.
func New(fs afs.Service, roots ...string) *Detector {
	if fs == nil {
		fs = afs.New()
	}
	d := &Detector{fs: fs}
	for _, r := range roots {
		d.AddRoot(r)
	}
	return d
}

// AddRoot registers an additional root to scan.
func (d *Detector) AddRoot(root string) {
	root = strings.TrimSpace(root)
	if root == "" {
		return
	}
	d.roots = append(d.roots, root)
}

// Scan lists every candidate sub-directory under the registered roots whose
// name matches the task-id shape and which contains at least one of the two
// recognised log files. The result is sorted by TaskID for deterministic
// downstream processing (§4.8 "Batching & determinism").
func (d *Detector) Scan(ctx context.Context) ([]Manifest, error) {
	var out []Manifest
	seen := map[string]bool{}
	for _, root := range d.roots {
		entries, err := d.fs.List(ctx, root)
		if err != nil {
			// A missing/unreadable root is not fatal to the overall scan; the
			// caller may have configured several candidate roots and only
			// some need to exist (§4.1 "OS-specific defaults and overrides").
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			name := filepath.Base(strings.TrimRight(entry.Name(), "/"))
			if !taskIDPattern.MatchString(name) {
				continue
			}
			dirPath := url.Join(root, name)
			manifest, err := d.inspect(ctx, name, dirPath)
			if err != nil {
				continue
			}
			if !manifest.HasAgentExchange && !manifest.HasUIEvents {
				continue
			}
			if seen[manifest.TaskID] {
				continue
			}
			seen[manifest.TaskID] = true
			out = append(out, manifest)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}

func (d *Detector) inspect(ctx context.Context, taskID, dirPath string) (Manifest, error) {
	m := Manifest{TaskID: taskID, DirectoryPath: dirPath}
	children, err := d.fs.List(ctx, dirPath)
	if err != nil {
		return m, err
	}
	for _, c := range children {
		if c.IsDir() {
			continue
		}
		switch filepath.Base(c.Name()) {
		case AgentExchangeFile:
			m.HasAgentExchange = true
		case UIEventFile:
			m.HasUIEvents = true
		case MetadataFile:
			m.HasMetadata = true
		}
	}
	return m, nil
}
