// Package flow implements the work-execution substrate for conductor jobs:
// tasks composed into linear or graph-ordered flows with defined revert
// semantics, executed by an engine through discrete compile, prepare,
// validate and run stages.
package flow

import "context"

// Values is the symbol table passed between tasks. Keys are the names
// declared via Provides/Requires; values must be JSON-serializable so that
// flow details can be persisted.
type Values map[string]interface{}

// Clone returns a shallow copy of the value set.
func (v Values) Clone() Values {
	cloned := make(Values, len(v))
	for k, val := range v {
		cloned[k] = val
	}
	return cloned
}

// Atom is the common interface of everything an engine can execute: tasks,
// flows and retry wrappers.
type Atom interface {
	// Name returns the atom name used in logs and error messages.
	Name() string
}

// Task is the atomic unit of flow work.
type Task interface {
	Atom

	// Requires returns the names of the inputs the task needs bound
	// before it can execute.
	Requires() []string

	// Provides returns the names of the outputs the task contributes to
	// the symbol table.
	Provides() []string

	// Rebind maps a required name to a different symbol-table name,
	// allowing a task to consume a value published under another key.
	Rebind() map[string]string

	// Execute runs the task with its bound inputs and returns the values
	// it provides.
	Execute(ctx context.Context, inputs Values) (Values, error)

	// Revert undoes the effects of a successful Execute. It receives the
	// same bound inputs plus the result Execute returned. Revert is never
	// invoked for a task whose Execute failed.
	Revert(ctx context.Context, inputs Values, result Values) error
}

// TaskSpec describes a function-backed task for NewTask.
type TaskSpec struct {
	Name     string
	Requires []string
	Provides []string
	Rebind   map[string]string
	Execute  func(ctx context.Context, inputs Values) (Values, error)
	Revert   func(ctx context.Context, inputs Values, result Values) error
}

// NewTask returns a Task backed by the functions in the provided spec. A
// nil Revert function yields a task whose revert is a no-op.
func NewTask(spec TaskSpec) Task {
	return &fnTask{spec: spec}
}

type fnTask struct {
	spec TaskSpec
}

func (t *fnTask) Name() string              { return t.spec.Name }
func (t *fnTask) Requires() []string        { return t.spec.Requires }
func (t *fnTask) Provides() []string        { return t.spec.Provides }
func (t *fnTask) Rebind() map[string]string { return t.spec.Rebind }

func (t *fnTask) Execute(ctx context.Context, inputs Values) (Values, error) {
	return t.spec.Execute(ctx, inputs)
}

func (t *fnTask) Revert(ctx context.Context, inputs Values, result Values) error {
	if t.spec.Revert == nil {
		return nil
	}
	return t.spec.Revert(ctx, inputs, result)
}

// LinearFlow composes atoms that run strictly in declared order. If a child
// fails, every previously-succeeded child in the flow is reverted in
// reverse order before the failure propagates upward.
type LinearFlow struct {
	name     string
	children []Atom
}

// NewLinearFlow creates a linear flow over the provided children.
func NewLinearFlow(name string, children ...Atom) *LinearFlow {
	return &LinearFlow{name: name, children: children}
}

// Name implements Atom.
func (f *LinearFlow) Name() string { return f.name }

// GraphFlow composes atoms that run in dependency order derived from their
// declared provides/requires/rebind names. Cycles are rejected when the
// engine compiles the flow.
type GraphFlow struct {
	name     string
	children []Atom
}

// NewGraphFlow creates a graph flow over the provided children.
func NewGraphFlow(name string, children ...Atom) *GraphFlow {
	return &GraphFlow{name: name, children: children}
}

// Name implements Atom.
func (f *GraphFlow) Name() string { return f.name }

// Retry wraps a child atom with a maximum attempt count. When the child
// fails (after reverting itself), it is re-run up to the attempt budget
// before the failure is allowed to propagate and trigger revert of the
// enclosing flow.
type Retry struct {
	name     string
	attempts int
	child    Atom
}

// NewRetry wraps child with a bounded retry loop of at most attempts runs.
func NewRetry(name string, attempts int, child Atom) *Retry {
	return &Retry{name: name, attempts: attempts, child: child}
}

// Name implements Atom.
func (r *Retry) Name() string { return r.name }

// requiredNames returns the effective symbol-table names a task consumes,
// after applying its rebind mapping.
func requiredNames(t Task) []string {
	rebind := t.Rebind()
	out := make([]string, 0, len(t.Requires()))
	for _, name := range t.Requires() {
		if mapped, exists := rebind[name]; exists {
			name = mapped
		}
		out = append(out, name)
	}
	return out
}

// atomRequires returns the union of effective required names below atom
// that are not satisfied within the atom itself.
func atomRequires(atom Atom) []string {
	provided := make(map[string]bool)
	required := make(map[string]bool)
	collectBindings(atom, provided, required)

	var out []string
	for name := range required {
		if !provided[name] {
			out = append(out, name)
		}
	}
	return out
}

// atomProvides returns the union of provided names below atom.
func atomProvides(atom Atom) []string {
	provided := make(map[string]bool)
	collectBindings(atom, provided, make(map[string]bool))

	out := make([]string, 0, len(provided))
	for name := range provided {
		out = append(out, name)
	}
	return out
}

func collectBindings(atom Atom, provided, required map[string]bool) {
	switch a := atom.(type) {
	case Task:
		for _, name := range requiredNames(a) {
			required[name] = true
		}
		for _, name := range a.Provides() {
			provided[name] = true
		}
	case *LinearFlow:
		for _, child := range a.children {
			collectBindings(child, provided, required)
		}
	case *GraphFlow:
		for _, child := range a.children {
			collectBindings(child, provided, required)
		}
	case *Retry:
		collectBindings(a.child, provided, required)
	}
}
