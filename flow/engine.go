package flow

import (
	"context"
	"io/ioutil"

	"github.com/hashicorp/go-multierror"
	"github.com/openstack-archive/poppy-sub002/persistence"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Config encapsulates the settings for configuring a flow engine.
type Config struct {
	// The flow to execute.
	Flow Atom

	// An optional store for persisting flow-detail progress. When nil the
	// engine runs without durable progress tracking.
	Store persistence.Store

	// The logbook the flow detail belongs to; only consulted when Store
	// is set.
	Book *persistence.Logbook

	// The flow detail to resume or update. When nil and Store is set, a
	// fresh detail is created for this run.
	Detail *persistence.FlowDetail

	// The initial symbol-table values (the job's stored call arguments).
	Initial Values

	// The tracer used to instrument the engine stages. If not defined a
	// no-op tracer will be used instead.
	Tracer opentracing.Tracer

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Flow == nil {
		err = multierror.Append(err, xerrors.Errorf("flow has not been provided"))
	}
	if cfg.Initial == nil {
		cfg.Initial = Values{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = opentracing.NoopTracer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	if cfg.Store != nil && cfg.Detail == nil {
		cfg.Detail = &persistence.FlowDetail{
			Name:  cfg.Flow.Name(),
			State: persistence.StatePending,
		}
		if cfg.Book != nil {
			cfg.Detail.BookID = cfg.Book.ID
		}
	}
	return err
}

type journalEntry struct {
	task   Task
	inputs Values
	result Values
}

// Engine executes a flow through four strictly-ordered stages: Compile
// builds the dependency plan, Prepare verifies that every task's bindings
// are satisfiable, Validate performs schema-level checks and Run executes
// the plan, applying revert semantics on failure.
type Engine struct {
	cfg Config

	topoOrders map[*GraphFlow][]Atom
	storage    Values
	journal    []journalEntry

	compiled  bool
	prepared  bool
	validated bool
}

// NewEngine creates a new engine instance with the specified config.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("engine: config validation failed: %w", err)
	}

	return &Engine{
		cfg:        cfg,
		topoOrders: make(map[*GraphFlow][]Atom),
		storage:    cfg.Initial.Clone(),
	}, nil
}

// Results returns the current symbol table contents.
func (e *Engine) Results() Values {
	return e.storage.Clone()
}

// Compile resolves the dependency ordering for every graph flow in the
// composition and rejects cyclic or ambiguous wirings.
func (e *Engine) Compile() error {
	span := e.cfg.Tracer.StartSpan("engine/compile")
	defer span.Finish()

	if err := e.compile(e.cfg.Flow); err != nil {
		return xerrors.Errorf("compile flow %q: %w", e.cfg.Flow.Name(), err)
	}
	e.compiled = true
	return nil
}

func (e *Engine) compile(atom Atom) error {
	switch a := atom.(type) {
	case Task:
		return nil
	case *LinearFlow:
		for _, child := range a.children {
			if err := e.compile(child); err != nil {
				return err
			}
		}
		return nil
	case *Retry:
		return e.compile(a.child)
	case *GraphFlow:
		for _, child := range a.children {
			if err := e.compile(child); err != nil {
				return err
			}
		}
		order, err := topologicalOrder(a)
		if err != nil {
			return err
		}
		e.topoOrders[a] = order
		return nil
	default:
		return xerrors.Errorf("unsupported atom type %T", atom)
	}
}

// Prepare verifies that every task's required bindings can be satisfied by
// the initial values or by tasks that execute before it.
func (e *Engine) Prepare() error {
	span := e.cfg.Tracer.StartSpan("engine/prepare")
	defer span.Finish()

	if !e.compiled {
		return xerrors.New("engine: prepare invoked before compile")
	}

	available := make(map[string]bool, len(e.cfg.Initial))
	for name := range e.cfg.Initial {
		available[name] = true
	}
	if err := e.prepare(e.cfg.Flow, available); err != nil {
		return xerrors.Errorf("prepare flow %q: %w", e.cfg.Flow.Name(), err)
	}
	e.prepared = true
	return nil
}

func (e *Engine) prepare(atom Atom, available map[string]bool) error {
	switch a := atom.(type) {
	case Task:
		for _, name := range requiredNames(a) {
			if !available[name] {
				return xerrors.Errorf("task %q: required binding %q is not satisfiable", a.Name(), name)
			}
		}
		for _, name := range a.Provides() {
			available[name] = true
		}
		return nil
	case *LinearFlow:
		for _, child := range a.children {
			if err := e.prepare(child, available); err != nil {
				return err
			}
		}
		return nil
	case *Retry:
		return e.prepare(a.child, available)
	case *GraphFlow:
		for _, child := range e.topoOrders[a] {
			if err := e.prepare(child, available); err != nil {
				return err
			}
		}
		return nil
	default:
		return xerrors.Errorf("unsupported atom type %T", atom)
	}
}

// Validate performs schema-level checks on the flow composition.
func (e *Engine) Validate() error {
	span := e.cfg.Tracer.StartSpan("engine/validate")
	defer span.Finish()

	if !e.prepared {
		return xerrors.New("engine: validate invoked before prepare")
	}
	if err := e.validateAtom(e.cfg.Flow); err != nil {
		return xerrors.Errorf("validate flow %q: %w", e.cfg.Flow.Name(), err)
	}
	e.validated = true
	return nil
}

func (e *Engine) validateAtom(atom Atom) error {
	if atom.Name() == "" {
		return xerrors.New("atom with empty name")
	}

	switch a := atom.(type) {
	case Task:
		declared := make(map[string]bool, len(a.Requires()))
		for _, name := range a.Requires() {
			declared[name] = true
		}
		for name := range a.Rebind() {
			if !declared[name] {
				return xerrors.Errorf("task %q: rebind target %q is not a declared requirement", a.Name(), name)
			}
		}
		return nil
	case *LinearFlow:
		for _, child := range a.children {
			if err := e.validateAtom(child); err != nil {
				return err
			}
		}
		return nil
	case *GraphFlow:
		for _, child := range a.children {
			if err := e.validateAtom(child); err != nil {
				return err
			}
		}
		return nil
	case *Retry:
		if a.attempts < 1 {
			return xerrors.Errorf("retry %q: attempt budget must be at least 1", a.Name())
		}
		return e.validateAtom(a.child)
	default:
		return xerrors.Errorf("unsupported atom type %T", atom)
	}
}

// Run executes the compiled plan. On task failure every previously
// succeeded task in the enclosing flow scope is reverted in reverse order
// before the failure propagates; retry wrappers re-run their child within
// their attempt budget before allowing the failure through.
func (e *Engine) Run(ctx context.Context) error {
	span := e.cfg.Tracer.StartSpan("engine/run")
	defer span.Finish()

	if !e.compiled || !e.prepared || !e.validated {
		return xerrors.New("engine: run invoked before compile/prepare/validate")
	}

	if err := e.saveDetail(persistence.StateRunning); err != nil {
		return err
	}

	runErr := e.run(ctx, e.cfg.Flow)
	if runErr == nil {
		if err := e.saveDetail(persistence.StateSuccess); err != nil {
			return err
		}
		return nil
	}

	if err := e.saveDetail(persistence.StateReverted); err != nil {
		return multierror.Append(runErr, err)
	}
	return runErr
}

func (e *Engine) run(ctx context.Context, atom Atom) error {
	switch a := atom.(type) {
	case Task:
		return e.runTask(ctx, a)
	case *LinearFlow:
		return e.runScope(ctx, a.children)
	case *GraphFlow:
		return e.runScope(ctx, e.topoOrders[a])
	case *Retry:
		var lastErr error
		for attempt := 1; attempt <= a.attempts; attempt++ {
			if lastErr = e.run(ctx, a.child); lastErr == nil {
				return nil
			}
			e.cfg.Logger.WithFields(logrus.Fields{
				"retry":   a.Name(),
				"attempt": attempt,
				"budget":  a.attempts,
				"err":     lastErr,
			}).Warn("flow attempt failed")
		}
		return xerrors.Errorf("retry %q: attempt budget exhausted: %w", a.Name(), lastErr)
	default:
		return xerrors.Errorf("unsupported atom type %T", atom)
	}
}

// runScope executes the children of one flow scope in order and applies the
// scope's revert semantics when one of them fails.
func (e *Engine) runScope(ctx context.Context, children []Atom) error {
	scopeStart := len(e.journal)
	for _, child := range children {
		err := e.run(ctx, child)
		if err == nil {
			continue
		}
		if revertErr := e.revertFrom(ctx, scopeStart); revertErr != nil {
			return multierror.Append(err, revertErr)
		}
		return err
	}
	return nil
}

func (e *Engine) runTask(ctx context.Context, task Task) error {
	inputs := Values{}
	rebind := task.Rebind()
	for _, name := range task.Requires() {
		source := name
		if mapped, exists := rebind[name]; exists {
			source = mapped
		}
		inputs[name] = e.storage[source]
	}

	e.cfg.Logger.WithField("task", task.Name()).Debug("executing task")
	result, err := task.Execute(ctx, inputs)
	if err != nil {
		return xerrors.Errorf("task %q: %w", task.Name(), err)
	}

	for name, value := range result {
		e.storage[name] = value
	}
	e.journal = append(e.journal, journalEntry{task: task, inputs: inputs, result: result})

	// Persist intermediate progress so a resumed run can audit how far
	// the flow got.
	return e.saveDetail(persistence.StateRunning)
}

// revertFrom reverts all journaled tasks from the end of the journal down
// to mark, in reverse execution order. Revert failures do not stop the
// remaining reverts; they are accumulated and reported together.
func (e *Engine) revertFrom(ctx context.Context, mark int) error {
	var err error
	for i := len(e.journal) - 1; i >= mark; i-- {
		entry := e.journal[i]
		e.cfg.Logger.WithField("task", entry.task.Name()).Debug("reverting task")
		if rerr := entry.task.Revert(ctx, entry.inputs, entry.result); rerr != nil {
			err = multierror.Append(err, xerrors.Errorf("revert task %q: %w", entry.task.Name(), rerr))
		}
	}
	e.journal = e.journal[:mark]
	return err
}

// saveDetail persists the flow detail with the provided state. Failures are
// tagged with the storage failure class so that the conductor treats them
// as retryable.
func (e *Engine) saveDetail(state string) error {
	if e.cfg.Store == nil {
		return nil
	}

	e.cfg.Detail.State = state
	e.cfg.Detail.Results = e.storage.Clone()
	if err := e.cfg.Store.SaveFlowDetail(e.cfg.Detail); err != nil {
		return StorageFailure(xerrors.Errorf("save flow detail: %w", err))
	}
	return nil
}

// topologicalOrder computes an execution order for the children of a graph
// flow such that every producer of a name runs before its consumers. It
// fails if a name has multiple producers or the dependencies form a cycle.
func topologicalOrder(f *GraphFlow) ([]Atom, error) {
	producers := make(map[string]int)
	for i, child := range f.children {
		for _, name := range atomProvides(child) {
			if other, exists := producers[name]; exists {
				return nil, xerrors.Errorf("binding %q is provided by both %q and %q", name, f.children[other].Name(), f.children[i].Name())
			}
			producers[name] = i
		}
	}

	// Build the dependency edges and in-degrees for Kahn's algorithm.
	dependents := make(map[int][]int)
	inDegree := make([]int, len(f.children))
	for i, child := range f.children {
		for _, name := range atomRequires(child) {
			producer, exists := producers[name]
			if !exists || producer == i {
				// Satisfied by the initial values (checked during
				// the prepare stage).
				continue
			}
			dependents[producer] = append(dependents[producer], i)
			inDegree[i]++
		}
	}

	var ready []int
	for i := range f.children {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	var order []Atom
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, f.children[next])
		for _, dep := range dependents[next] {
			if inDegree[dep]--; inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(f.children) {
		return nil, xerrors.Errorf("flow %q contains a dependency cycle", f.Name())
	}
	return order, nil
}
