package definition

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func mustParse(t *testing.T, raw string) *Definition {
	t.Helper()
	def, err := Parse("test.yml", []byte(raw))
	require.NoError(t, err)
	return def
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		valid   bool
		reasons []string
	}{
		{
			name:  "valid minimal",
			raw:   "namespace: demo\nid: flow1\ntasks: [{id: t1, type: log}]\n",
			valid: true,
		},
		{
			name:    "missing tasks",
			raw:     "namespace: demo\nid: flow1\n",
			reasons: []string{"missing required field: tasks"},
		},
		{
			name: "missing everything",
			raw:  "description: nothing here\n",
			reasons: []string{
				"missing required field: namespace",
				"missing required field: id",
				"missing required field: tasks",
			},
		},
		{
			name:    "empty task list",
			raw:     "namespace: demo\nid: flow1\ntasks: []\n",
			reasons: []string{"tasks must be a non-empty list"},
		},
		{
			name:    "tasks not a list",
			raw:     "namespace: demo\nid: flow1\ntasks: {id: t1}\n",
			reasons: []string{"tasks must be a non-empty list"},
		},
		{
			name:    "task missing type",
			raw:     "namespace: demo\nid: flow1\ntasks: [{id: t1}]\n",
			reasons: []string{"task 0: type is required"},
		},
		{
			name:    "task with empty id",
			raw:     "namespace: demo\nid: flow1\ntasks: [{id: t1, type: log}, {id: '', type: log}]\n",
			reasons: []string{"task 1: id is required"},
		},
		{
			name:    "task not a mapping",
			raw:     "namespace: demo\nid: flow1\ntasks: [hello]\n",
			reasons: []string{"task 0 must be a mapping"},
		},
		{
			name:    "dotted id",
			raw:     "namespace: a\nid: b.c\ntasks: [{id: t1, type: log}]\n",
			reasons: []string{"id must not contain '.'"},
		},
		{
			name:  "dotted namespace",
			raw:   "namespace: a.b\nid: c\ntasks: [{id: t1, type: log}]\n",
			valid: true,
		},
		{
			name:    "null namespace",
			raw:     "namespace:\nid: flow1\ntasks: [{id: t1, type: log}]\n",
			reasons: []string{"namespace must be a non-empty string"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(mustParse(t, tt.raw))
			require.Equal(t, tt.valid, res.Valid)
			require.Equal(t, tt.reasons, res.Reasons)
		})
	}
}

// Two valid definitions share a key only when namespace and id both match.
func TestValidate_KeysAreUnambiguous(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		segment := rapid.StringMatching(`[a-z][a-z0-9]{0,3}`)
		ns := rapid.SliceOfN(segment, 1, 3).Draw(t, "ns")
		id := rapid.StringMatching(`[a-z][a-z0-9._-]{0,6}`).Draw(t, "id")

		def := &Definition{
			Namespace: strings.Join(ns, "."),
			ID:        id,
			Document: map[string]any{
				"namespace": strings.Join(ns, "."),
				"id":        id,
				"tasks":     []any{map[string]any{"id": "t1", "type": "log"}},
			},
		}
		if !Validate(def).Valid {
			return
		}
		cut := strings.LastIndex(def.Key(), ".")
		if def.Key()[:cut] != def.Namespace || def.Key()[cut+1:] != def.ID {
			t.Fatalf("key %q does not split back into (%q, %q)", def.Key(), def.Namespace, def.ID)
		}
	})
}

func TestValidate_NilDefinition(t *testing.T) {
	res := Validate(nil)
	require.False(t, res.Valid)
	require.NotEmpty(t, res.Reasons)
}

func TestResult_Err(t *testing.T) {
	require.NoError(t, Result{Valid: true}.Err("a.yml"))

	err := Result{Reasons: []string{"missing required field: tasks"}}.Err("a.yml")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))
	require.Contains(t, err.Error(), "a.yml")
	require.Contains(t, err.Error(), "missing required field: tasks")
}

// Any task list containing an entry with an empty id or type is rejected,
// and lists where every entry is complete are accepted.
func TestValidate_TaskListProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "numTasks")
		tasks := make([]any, 0, n)
		complete := true
		for i := 0; i < n; i++ {
			id := rapid.StringMatching(`[a-z0-9_]{0,6}`).Draw(t, "id")
			typ := rapid.StringMatching(`[a-zA-Z.]{0,12}`).Draw(t, "type")
			if id == "" || typ == "" {
				complete = false
			}
			tasks = append(tasks, map[string]any{"id": id, "type": typ})
		}

		def := &Definition{Document: map[string]any{
			"namespace": "demo",
			"id":        "flow",
			"tasks":     tasks,
		}}

		res := Validate(def)
		if res.Valid != complete {
			t.Fatalf("valid=%v but complete=%v (reasons %v)", res.Valid, complete, res.Reasons)
		}
		if res.Valid != (len(res.Reasons) == 0) {
			t.Fatalf("valid=%v inconsistent with reasons %v", res.Valid, res.Reasons)
		}
	})
}
