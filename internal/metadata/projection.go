// Package metadata derives the catalogue record for a synced flow and
// publishes it to the secondary metadata store.
package metadata

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/zjrosen/flowsync/internal/definition"
)

const (
	defaultDescription = "No description available"
	defaultDifficulty  = "Intermediate"
)

// Projection is the read-only metadata view of a definition.
type Projection struct {
	Key                 string  `json:"key"`
	Title               string  `json:"title"`
	Description         string  `json:"description"`
	Namespace           string  `json:"namespace"`
	FlowID              string  `json:"flow_id"`
	TemplatePath        string  `json:"template_path"`
	ConfigurationSchema string  `json:"configuration_schema"`
	Labels              string  `json:"labels"`
	Category            string  `json:"category"`
	DifficultyLevel     string  `json:"difficulty_level"`
	Price               float64 `json:"price"`
}

// schemaTypes maps declared input types to JSON schema types.
var schemaTypes = map[string]string{
	"STRING":  "string",
	"INTEGER": "number",
	"FLOAT":   "number",
	"BOOLEAN": "boolean",
	"JSON":    "object",
	"ARRAY":   "array",
}

// SchemaType normalizes a declared input type. Unknown types are strings.
func SchemaType(declared string) string {
	if t, ok := schemaTypes[strings.ToUpper(strings.TrimSpace(declared))]; ok {
		return t
	}
	return "string"
}

type (
	schema struct {
		Type       string              `json:"type"`
		Properties map[string]property `json:"properties"`
	}

	property struct {
		Type     string `json:"type"`
		Title    string `json:"title"`
		Required bool   `json:"required"`
		Default  any    `json:"default,omitempty"`
	}
)

// Project builds the projection for def loaded from path.
func Project(def *definition.Definition, path string) Projection {
	name := DisplayName(path)

	p := Projection{
		Key:             def.Key(),
		Title:           name,
		Description:     defaultDescription,
		Namespace:       def.Namespace,
		FlowID:          def.ID,
		TemplatePath:    path,
		Category:        name,
		DifficultyLevel: defaultDifficulty,
	}
	if def.Description != "" {
		p.Title = def.Description
		p.Description = def.Description
	}

	s := schema{Type: "object", Properties: make(map[string]property, len(def.Inputs))}
	for _, in := range def.Inputs {
		title := in.Description
		if title == "" {
			title = in.Name
		}
		s.Properties[in.Name] = property{
			Type:     SchemaType(in.Type),
			Title:    title,
			Required: in.Required,
			Default:  in.Default,
		}
	}
	p.ConfigurationSchema = mustJSON(s, `{"type":"object","properties":{}}`)

	labels := def.Labels
	if labels == nil {
		labels = map[string]string{}
	}
	p.Labels = mustJSON(labels, "{}")

	return p
}

// DisplayName turns a file path into a title: the base name without its
// extension, separators replaced by spaces, each word capitalized.
func DisplayName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)

	var b strings.Builder
	prevLetter := false
	for _, r := range base {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

func mustJSON(v any, fallback string) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fallback
	}
	return string(data)
}
