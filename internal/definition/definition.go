// Package definition loads workflow definition files from disk and checks
// that they carry the structure the orchestration API requires.
package definition

import "fmt"

// Task is the minimal view of one task descriptor.
type Task struct {
	ID   string
	Type string
}

// Input describes one declared workflow input.
type Input struct {
	Name        string
	Type        string
	Required    bool
	Description string
	Default     any
}

// Definition is a parsed workflow definition file.
// A Definition is built fresh on every load and is never mutated afterwards.
type Definition struct {
	Path        string
	ID          string
	Namespace   string
	Description string
	Tasks       []Task
	Inputs      []Input
	Labels      map[string]string

	// Document is the full decoded document, used as the request body.
	Document map[string]any
	// Raw holds the file bytes exactly as read.
	Raw []byte
}

// Ref identifies the remote object a definition maps to.
type Ref struct {
	Namespace string
	ID        string
}

// String returns the composite namespace.id key. Validate rejects dotted
// ids, so the last dot separates the two parts.
func (r Ref) String() string {
	return r.Namespace + "." + r.ID
}

// Ref returns the remote object reference for the definition.
func (d *Definition) Ref() Ref {
	return Ref{Namespace: d.Namespace, ID: d.ID}
}

// Key returns the stable namespace.id identifier.
func (d *Definition) Key() string {
	return d.Ref().String()
}

func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(val), true
	default:
		return "", false
	}
}
