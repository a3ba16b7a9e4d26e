package definition

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

var errEmptyDocument = errors.New("empty document")

// Load reads and parses the definition file at path.
// I/O failures are returned as-is; malformed content yields a *ParseError.
func Load(path string) (*Definition, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the configured definitions root
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(path, raw)
}

// Parse decodes raw YAML bytes into a Definition. Fields are extracted
// leniently; structural checks are left to Validate.
func Parse(path string, raw []byte) (*Definition, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if node.Kind == 0 || len(node.Content) == 0 {
		return nil, &ParseError{Path: path, Err: errEmptyDocument}
	}

	root := node.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil, &ParseError{Path: path, Err: errEmptyDocument}
	}
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("expected a mapping at the document root, got %s", kindName(root.Kind))}
	}
	if len(root.Content) == 0 {
		return nil, &ParseError{Path: path, Err: errEmptyDocument}
	}

	var doc map[string]any
	if err := root.Decode(&doc); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	doc = normalizeMap(doc)

	def := &Definition{
		Path:     path,
		Document: doc,
		Raw:      raw,
	}
	def.ID, _ = scalarString(doc["id"])
	def.Namespace, _ = scalarString(doc["namespace"])
	def.Description, _ = scalarString(doc["description"])
	def.Tasks = extractTasks(doc["tasks"])
	def.Inputs = extractInputs(doc["inputs"], inputOrder(root))
	def.Labels = extractLabels(doc["labels"])

	return def, nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "mapping"
	}
}

func extractTasks(v any) []Task {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	tasks := make([]Task, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			tasks = append(tasks, Task{})
			continue
		}
		id, _ := scalarString(m["id"])
		typ, _ := scalarString(m["type"])
		tasks = append(tasks, Task{ID: id, Type: typ})
	}
	return tasks
}

// extractInputs accepts both the list form (- id: name, type: STRING) and
// the mapping form (name: {type: STRING}). Mapping inputs follow order, the
// key order in the file; keys it does not list, such as merged ones, come
// last in name order.
func extractInputs(v any, order []string) []Input {
	switch val := v.(type) {
	case []any:
		inputs := make([]Input, 0, len(val))
		for _, item := range val {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := scalarString(m["id"])
			if name == "" {
				name, _ = scalarString(m["name"])
			}
			if name == "" {
				continue
			}
			inputs = append(inputs, inputFrom(name, m))
		}
		return inputs
	case map[string]any:
		names := make([]string, 0, len(val))
		seen := make(map[string]bool, len(val))
		for _, name := range order {
			if _, ok := val[name]; ok && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		var rest []string
		for name := range val {
			if !seen[name] {
				rest = append(rest, name)
			}
		}
		sort.Strings(rest)
		names = append(names, rest...)

		inputs := make([]Input, 0, len(names))
		for _, name := range names {
			m, _ := val[name].(map[string]any)
			inputs = append(inputs, inputFrom(name, m))
		}
		return inputs
	default:
		return nil
	}
}

// inputOrder returns the keys of a mapping-form inputs node as written.
func inputOrder(root *yaml.Node) []string {
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "inputs" {
			continue
		}
		node := root.Content[i+1]
		if node.Kind == yaml.AliasNode && node.Alias != nil {
			node = node.Alias
		}
		if node.Kind != yaml.MappingNode {
			return nil
		}
		order := make([]string, 0, len(node.Content)/2)
		for j := 0; j+1 < len(node.Content); j += 2 {
			order = append(order, node.Content[j].Value)
		}
		return order
	}
	return nil
}

func inputFrom(name string, m map[string]any) Input {
	in := Input{Name: name}
	if m == nil {
		return in
	}
	in.Type, _ = scalarString(m["type"])
	in.Description, _ = scalarString(m["description"])
	if req, ok := m["required"].(bool); ok {
		in.Required = req
	}
	in.Default = m["defaults"]
	if d, ok := m["default"]; ok {
		in.Default = d
	}
	return in
}

func extractLabels(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	labels := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := scalarString(val); ok {
			labels[k] = s
		}
	}
	return labels
}

// normalizeMap converts nested map[any]any values into map[string]any so the
// document can be re-encoded as JSON.
func normalizeMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = normalizeValue(v)
	}
	return m
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return normalizeMap(val)
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[fmt.Sprint(k)] = normalizeValue(inner)
		}
		return out
	case []any:
		for i := range val {
			val[i] = normalizeValue(val[i])
		}
		return val
	default:
		return val
	}
}
