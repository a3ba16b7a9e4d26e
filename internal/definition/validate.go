package definition

import (
	"fmt"
	"strings"
)

var requiredFields = []string{"namespace", "id", "tasks"}

// Result is the outcome of Validate. Reasons is empty when Valid is true.
type Result struct {
	Valid   bool
	Reasons []string
}

// Err returns a *ValidationError for a failed result, nil otherwise.
func (r Result) Err(path string) error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Path: path, Reasons: r.Reasons}
}

// Validate checks the structure the orchestration API requires. It never
// fails with an error; every violation is reported as a reason.
func Validate(def *Definition) Result {
	if def == nil || def.Document == nil {
		return Result{Reasons: []string{"document is empty"}}
	}
	doc := def.Document

	var reasons []string
	for _, field := range requiredFields {
		if _, ok := doc[field]; !ok {
			reasons = append(reasons, fmt.Sprintf("missing required field: %s", field))
		}
	}

	for _, field := range []string{"namespace", "id"} {
		v, present := doc[field]
		if !present {
			continue
		}
		if s, ok := scalarString(v); !ok || s == "" {
			reasons = append(reasons, fmt.Sprintf("%s must be a non-empty string", field))
		} else if field == "id" && strings.Contains(s, ".") {
			// Keys join namespace and id with a dot; a dotless id keeps the
			// last dot as the separator.
			reasons = append(reasons, "id must not contain '.'")
		}
	}

	if raw, present := doc["tasks"]; present {
		reasons = append(reasons, validateTasks(raw)...)
	}

	return Result{Valid: len(reasons) == 0, Reasons: reasons}
}

func validateTasks(raw any) []string {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return []string{"tasks must be a non-empty list"}
	}

	var reasons []string
	for i, item := range list {
		task, ok := item.(map[string]any)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("task %d must be a mapping", i))
			continue
		}
		if id, ok := scalarString(task["id"]); !ok || id == "" {
			reasons = append(reasons, fmt.Sprintf("task %d: id is required", i))
		}
		if typ, ok := scalarString(task["type"]); !ok || typ == "" {
			reasons = append(reasons, fmt.Sprintf("task %d: type is required", i))
		}
	}
	return reasons
}
