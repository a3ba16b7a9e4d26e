// Package testutil provides fixtures shared by flowsync tests: definition
// trees on disk, a recording fake of the orchestration API and an in-memory
// SQLite database.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// fileData is a file queued for writing.
type fileData struct {
	rel     string
	content []byte
}

// Builder accumulates definition files and writes them under a root directory.
type Builder struct {
	t     *testing.T
	root  string
	files []fileData
}

// NewBuilder creates a builder writing under root.
func NewBuilder(t *testing.T, root string) *Builder {
	t.Helper()
	return &Builder{t: t, root: root}
}

// WithFlow adds a definition file at rel with optional configuration.
func (b *Builder) WithFlow(rel, namespace, id string, opts ...FlowOption) *Builder {
	b.t.Helper()
	flow := defaultFlow(namespace, id)
	for _, opt := range opts {
		opt(&flow)
	}
	b.files = append(b.files, fileData{rel: rel, content: RenderFlow(b.t, flow)})
	return b
}

// WithFile adds a file with literal content.
func (b *Builder) WithFile(rel, content string) *Builder {
	b.files = append(b.files, fileData{rel: rel, content: []byte(content)})
	return b
}

// Build writes all accumulated files and returns their paths in insertion order.
func (b *Builder) Build() []string {
	b.t.Helper()
	paths := make([]string, 0, len(b.files))
	for _, f := range b.files {
		path := filepath.Join(b.root, filepath.FromSlash(f.rel))
		require.NoError(b.t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(b.t, os.WriteFile(path, f.content, 0o600))
		paths = append(paths, path)
	}
	return paths
}

// WriteFlow writes a single definition file and returns its path.
func WriteFlow(t *testing.T, dir, name, namespace, id string, opts ...FlowOption) string {
	t.Helper()
	return NewBuilder(t, dir).WithFlow(name, namespace, id, opts...).Build()[0]
}

// RenderFlow marshals flow as a YAML document in the list form the
// orchestration service uses for tasks and inputs.
func RenderFlow(t *testing.T, flow flowData) []byte {
	t.Helper()

	doc := map[string]any{}
	set := func(key string, value any) {
		if !flow.omit[key] {
			doc[key] = value
		}
	}

	set("id", flow.id)
	set("namespace", flow.namespace)
	if flow.description != "" {
		set("description", flow.description)
	}

	tasks := make([]map[string]any, 0, len(flow.tasks))
	for _, task := range flow.tasks {
		m := map[string]any{}
		if task.ID != "" {
			m["id"] = task.ID
		}
		if task.Type != "" {
			m["type"] = task.Type
		}
		tasks = append(tasks, m)
	}
	set("tasks", tasks)

	if len(flow.inputs) > 0 {
		inputs := make([]map[string]any, 0, len(flow.inputs))
		for _, in := range flow.inputs {
			m := map[string]any{"id": in.ID, "type": in.Type, "required": in.Required}
			if in.Description != "" {
				m["description"] = in.Description
			}
			if in.Default != nil {
				m["defaults"] = in.Default
			}
			inputs = append(inputs, m)
		}
		set("inputs", inputs)
	}
	if len(flow.labels) > 0 {
		set("labels", flow.labels)
	}
	for k, v := range flow.extra {
		doc[k] = v
	}

	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	return out
}
