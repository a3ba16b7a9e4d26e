package testutil

// TaskData is one task descriptor written into a flow file.
type TaskData struct {
	ID   string
	Type string
}

// InputData is one declared input written into a flow file.
type InputData struct {
	ID          string
	Type        string
	Required    bool
	Description string
	Default     any
}

// flowData holds everything rendered into a single definition file.
type flowData struct {
	namespace   string
	id          string
	description string
	tasks       []TaskData
	inputs      []InputData
	labels      map[string]string
	omit        map[string]bool
	extra       map[string]any
}

// defaultFlow returns a flow with one log task, which passes validation.
func defaultFlow(namespace, id string) flowData {
	return flowData{
		namespace: namespace,
		id:        id,
		tasks:     []TaskData{{ID: "t1", Type: "log"}},
	}
}

// FlowOption configures a flow during builder setup.
type FlowOption func(*flowData)

// Description sets the flow description.
func Description(desc string) FlowOption {
	return func(f *flowData) { f.description = desc }
}

// Tasks replaces the task list.
func Tasks(tasks ...TaskData) FlowOption {
	return func(f *flowData) { f.tasks = tasks }
}

// Task creates a TaskData structure.
func Task(id, typ string) TaskData {
	return TaskData{ID: id, Type: typ}
}

// Inputs sets the declared inputs.
func Inputs(inputs ...InputData) FlowOption {
	return func(f *flowData) { f.inputs = inputs }
}

// Input creates an InputData structure.
func Input(id, typ string, required bool) InputData {
	return InputData{ID: id, Type: typ, Required: required}
}

// Labels sets labels from alternating key/value pairs.
func Labels(kv ...string) FlowOption {
	return func(f *flowData) {
		if f.labels == nil {
			f.labels = map[string]string{}
		}
		for i := 0; i+1 < len(kv); i += 2 {
			f.labels[kv[i]] = kv[i+1]
		}
	}
}

// Without drops top-level fields from the rendered document.
func Without(fields ...string) FlowOption {
	return func(f *flowData) {
		if f.omit == nil {
			f.omit = map[string]bool{}
		}
		for _, field := range fields {
			f.omit[field] = true
		}
	}
}

// Extra adds an arbitrary top-level field.
func Extra(key string, value any) FlowOption {
	return func(f *flowData) {
		if f.extra == nil {
			f.extra = map[string]any{}
		}
		f.extra[key] = value
	}
}
