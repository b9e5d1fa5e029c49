package flow_test

import (
	"context"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/openstack-archive/poppy-sub002/flow"
	"github.com/openstack-archive/poppy-sub002/persistence"
	memstore "github.com/openstack-archive/poppy-sub002/persistence/store/memory"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(EngineTestSuite))
var _ = gc.Suite(new(ClassificationTestSuite))

func Test(t *testing.T) { gc.TestingT(t) }

type EngineTestSuite struct {
	trace []string
}

func (s *EngineTestSuite) SetUpTest(c *gc.C) {
	s.trace = nil
}

// traceTask produces a task that records execute/revert invocations in the
// suite trace and fails when failOn is set.
func (s *EngineTestSuite) traceTask(name string, requires, provides []string, failErr error) flow.Task {
	return flow.NewTask(flow.TaskSpec{
		Name:     name,
		Requires: requires,
		Provides: provides,
		Execute: func(_ context.Context, _ flow.Values) (flow.Values, error) {
			s.trace = append(s.trace, "execute:"+name)
			if failErr != nil {
				return nil, failErr
			}
			out := flow.Values{}
			for _, p := range provides {
				out[p] = name
			}
			return out, nil
		},
		Revert: func(_ context.Context, _ flow.Values, _ flow.Values) error {
			s.trace = append(s.trace, "revert:"+name)
			return nil
		},
	})
}

func (s *EngineTestSuite) runStages(c *gc.C, e *flow.Engine) error {
	c.Assert(e.Compile(), gc.IsNil)
	c.Assert(e.Prepare(), gc.IsNil)
	c.Assert(e.Validate(), gc.IsNil)
	return e.Run(context.TODO())
}

func (s *EngineTestSuite) TestLinearHappyPath(c *gc.C) {
	f := flow.NewLinearFlow("greet",
		s.traceTask("hello", nil, []string{"stamp"}, nil),
		s.traceTask("goodbye", []string{"stamp"}, nil, nil),
	)
	e, err := flow.NewEngine(flow.Config{Flow: f})
	c.Assert(err, gc.IsNil)

	c.Assert(s.runStages(c, e), gc.IsNil)
	c.Assert(s.trace, gc.DeepEquals, []string{"execute:hello", "execute:goodbye"})
	c.Assert(e.Results()["stamp"], gc.Equals, "hello")
}

func (s *EngineTestSuite) TestLinearRevertOrdering(c *gc.C) {
	boom := xerrors.New("boom")
	f := flow.NewLinearFlow("doomed",
		s.traceTask("one", nil, nil, nil),
		s.traceTask("two", nil, nil, boom),
		s.traceTask("three", nil, nil, nil),
	)
	e, err := flow.NewEngine(flow.Config{Flow: f})
	c.Assert(err, gc.IsNil)

	runErr := s.runStages(c, e)
	c.Assert(runErr, gc.NotNil)
	c.Assert(xerrors.Is(runErr, boom), gc.Equals, true)

	// Task one must be reverted exactly once; task two failed so its own
	// revert must not run; task three must never execute.
	c.Assert(s.trace, gc.DeepEquals, []string{"execute:one", "execute:two", "revert:one"})
}

func (s *EngineTestSuite) TestNestedFlowRevertPropagation(c *gc.C) {
	boom := xerrors.New("boom")
	inner := flow.NewLinearFlow("inner",
		s.traceTask("inner-ok", nil, nil, nil),
		s.traceTask("inner-bad", nil, nil, boom),
	)
	outer := flow.NewLinearFlow("outer",
		s.traceTask("outer-ok", nil, nil, nil),
		inner,
	)
	e, err := flow.NewEngine(flow.Config{Flow: outer})
	c.Assert(err, gc.IsNil)

	runErr := s.runStages(c, e)
	c.Assert(runErr, gc.NotNil)
	c.Assert(s.trace, gc.DeepEquals, []string{
		"execute:outer-ok",
		"execute:inner-ok",
		"execute:inner-bad",
		"revert:inner-ok",
		"revert:outer-ok",
	})
}

func (s *EngineTestSuite) TestGraphTopologicalOrdering(c *gc.C) {
	// update must run before activate; fetch before both consumers.
	f := flow.NewGraphFlow("activation",
		s.traceTask("activate", []string{"property_version"}, nil, nil),
		s.traceTask("update", []string{"property_id"}, []string{"property_version"}, nil),
		s.traceTask("fetch", nil, []string{"property_id"}, nil),
	)
	e, err := flow.NewEngine(flow.Config{Flow: f})
	c.Assert(err, gc.IsNil)

	c.Assert(s.runStages(c, e), gc.IsNil)
	c.Assert(s.trace, gc.DeepEquals, []string{"execute:fetch", "execute:update", "execute:activate"})
}

func (s *EngineTestSuite) TestGraphCycleRejectedAtCompile(c *gc.C) {
	f := flow.NewGraphFlow("cyclic",
		s.traceTask("a", []string{"from-b"}, []string{"from-a"}, nil),
		s.traceTask("b", []string{"from-a"}, []string{"from-b"}, nil),
	)
	e, err := flow.NewEngine(flow.Config{Flow: f})
	c.Assert(err, gc.IsNil)

	err = e.Compile()
	c.Assert(err, gc.ErrorMatches, "(?s).*dependency cycle.*")
	c.Assert(s.trace, gc.HasLen, 0, gc.Commentf("no task may execute for a flow that fails to compile"))
}

func (s *EngineTestSuite) TestGraphDuplicateProviderRejected(c *gc.C) {
	f := flow.NewGraphFlow("ambiguous",
		s.traceTask("a", nil, []string{"result"}, nil),
		s.traceTask("b", nil, []string{"result"}, nil),
	)
	e, err := flow.NewEngine(flow.Config{Flow: f})
	c.Assert(err, gc.IsNil)
	c.Assert(e.Compile(), gc.ErrorMatches, "(?s).*provided by both.*")
}

func (s *EngineTestSuite) TestPrepareUnsatisfiableBinding(c *gc.C) {
	f := flow.NewLinearFlow("unbound",
		s.traceTask("needy", []string{"missing"}, nil, nil),
	)
	e, err := flow.NewEngine(flow.Config{Flow: f})
	c.Assert(err, gc.IsNil)

	c.Assert(e.Compile(), gc.IsNil)
	c.Assert(e.Prepare(), gc.ErrorMatches, `(?s).*required binding "missing" is not satisfiable.*`)
}

func (s *EngineTestSuite) TestRebind(c *gc.C) {
	var got interface{}
	consumer := flow.NewTask(flow.TaskSpec{
		Name:     "consumer",
		Requires: []string{"tracking_id"},
		Rebind:   map[string]string{"tracking_id": "cert_tracking_id"},
		Execute: func(_ context.Context, inputs flow.Values) (flow.Values, error) {
			got = inputs["tracking_id"]
			return nil, nil
		},
	})
	f := flow.NewLinearFlow("rebound", consumer)
	e, err := flow.NewEngine(flow.Config{
		Flow:    f,
		Initial: flow.Values{"cert_tracking_id": "t-42"},
	})
	c.Assert(err, gc.IsNil)
	c.Assert(s.runStages(c, e), gc.IsNil)
	c.Assert(got, gc.Equals, "t-42")
}

func (s *EngineTestSuite) TestRetrySucceedsWithinBudget(c *gc.C) {
	numCalls := 0
	flaky := flow.NewTask(flow.TaskSpec{
		Name: "flaky",
		Execute: func(_ context.Context, _ flow.Values) (flow.Values, error) {
			if numCalls++; numCalls < 3 {
				return nil, xerrors.New("transient")
			}
			return nil, nil
		},
	})
	e, err := flow.NewEngine(flow.Config{Flow: flow.NewRetry("retry-flaky", 3, flaky)})
	c.Assert(err, gc.IsNil)

	c.Assert(s.runStages(c, e), gc.IsNil)
	c.Assert(numCalls, gc.Equals, 3)
}

func (s *EngineTestSuite) TestRetryExhaustionRevertsEnclosingFlow(c *gc.C) {
	boom := xerrors.New("still down")
	f := flow.NewLinearFlow("outer",
		s.traceTask("setup", nil, nil, nil),
		flow.NewRetry("retry-bad", 2, s.traceTask("bad", nil, nil, boom)),
	)
	e, err := flow.NewEngine(flow.Config{Flow: f})
	c.Assert(err, gc.IsNil)

	runErr := s.runStages(c, e)
	c.Assert(runErr, gc.NotNil)
	c.Assert(xerrors.Is(runErr, boom), gc.Equals, true)
	c.Assert(s.trace, gc.DeepEquals, []string{
		"execute:setup",
		"execute:bad",
		"execute:bad",
		"revert:setup",
	})
}

func (s *EngineTestSuite) TestRetryAttemptBudgetValidated(c *gc.C) {
	e, err := flow.NewEngine(flow.Config{
		Flow: flow.NewRetry("no-budget", 0, s.traceTask("noop", nil, nil, nil)),
	})
	c.Assert(err, gc.IsNil)
	c.Assert(e.Compile(), gc.IsNil)
	c.Assert(e.Prepare(), gc.IsNil)
	c.Assert(e.Validate(), gc.ErrorMatches, "(?s).*attempt budget must be at least 1.*")
}

func (s *EngineTestSuite) TestStageOrderEnforced(c *gc.C) {
	e, err := flow.NewEngine(flow.Config{Flow: flow.NewLinearFlow("empty")})
	c.Assert(err, gc.IsNil)
	c.Assert(e.Run(context.TODO()), gc.ErrorMatches, "engine: run invoked before compile/prepare/validate")
	c.Assert(e.Prepare(), gc.ErrorMatches, "engine: prepare invoked before compile")
}

func (s *EngineTestSuite) TestDetailPersistence(c *gc.C) {
	store := memstore.NewInMemoryStore()
	book := &persistence.Logbook{Name: "greet"}
	c.Assert(store.SaveLogbook(book), gc.IsNil)

	f := flow.NewLinearFlow("greet",
		s.traceTask("hello", nil, []string{"stamp"}, nil),
	)
	e, err := flow.NewEngine(flow.Config{Flow: f, Store: store, Book: book})
	c.Assert(err, gc.IsNil)
	c.Assert(s.runStages(c, e), gc.IsNil)

	details, err := store.ListFlowDetails(book.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(details, gc.HasLen, 1)
	c.Assert(details[0].State, gc.Equals, persistence.StateSuccess)
	c.Assert(details[0].Results["stamp"], gc.Equals, "hello")
}

type ClassificationTestSuite struct{}

func (s *ClassificationTestSuite) TestClassPredicates(c *gc.C) {
	execErr := flow.ExecutionFailure(xerrors.New("worker died"))
	storErr := flow.StorageFailure(xerrors.New("store down"))
	plain := xerrors.New("bad input")

	c.Assert(flow.IsExecutionFailure(execErr), gc.Equals, true)
	c.Assert(flow.IsStorageFailure(execErr), gc.Equals, false)
	c.Assert(flow.IsStorageFailure(storErr), gc.Equals, true)
	c.Assert(flow.IsExecutionFailure(plain), gc.Equals, false)

	// Classification must survive wrapping.
	wrapped := xerrors.Errorf("task %q: %w", "activate", execErr)
	c.Assert(flow.IsExecutionFailure(wrapped), gc.Equals, true)
}

func (s *ClassificationTestSuite) TestIsRetryable(c *gc.C) {
	execErr := flow.ExecutionFailure(xerrors.New("worker died"))
	storErr := flow.StorageFailure(xerrors.New("store down"))
	plain := xerrors.New("bad input")

	c.Assert(flow.IsRetryable(nil), gc.Equals, false)
	c.Assert(flow.IsRetryable(execErr), gc.Equals, true)
	c.Assert(flow.IsRetryable(storErr), gc.Equals, true)
	c.Assert(flow.IsRetryable(plain), gc.Equals, false)

	var all error
	all = multierror.Append(all, execErr, storErr)
	c.Assert(flow.IsRetryable(all), gc.Equals, true)

	var mixed error
	mixed = multierror.Append(mixed, execErr, plain)
	c.Assert(flow.IsRetryable(mixed), gc.Equals, false, gc.Commentf("a single non-retryable failure must make the whole run non-retryable"))
}
