package conductor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openstack-archive/poppy-sub002/conductor"
	"github.com/openstack-archive/poppy-sub002/flow"
	"github.com/openstack-archive/poppy-sub002/jobboard"
	kvmemory "github.com/openstack-archive/poppy-sub002/jobboard/kv/memory"
	"github.com/openstack-archive/poppy-sub002/persistence"
	memstore "github.com/openstack-archive/poppy-sub002/persistence/store/memory"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(ConductorTestSuite))

func Test(t *testing.T) { gc.TestingT(t) }

type ConductorTestSuite struct {
	board jobboard.Board
	store persistence.Store
	flows *flow.Registry

	mu    sync.Mutex
	trace []string
}

func (s *ConductorTestSuite) SetUpTest(c *gc.C) {
	var err error
	s.store = memstore.NewInMemoryStore()
	s.board, err = jobboard.NewKVJobBoard(jobboard.Config{
		Client: kvmemory.NewInMemoryClient(),
		Store:  s.store,
	})
	c.Assert(err, gc.IsNil)
	s.flows = flow.NewRegistry()
	s.trace = nil
}

func (s *ConductorTestSuite) record(step string) {
	s.mu.Lock()
	s.trace = append(s.trace, step)
	s.mu.Unlock()
}

func (s *ConductorTestSuite) traceSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.trace...)
}

func (s *ConductorTestSuite) startConductor(c *gc.C, cfg conductor.Config) *conductor.Conductor {
	cfg.Board = s.board
	cfg.Store = s.store
	cfg.Flows = s.flows
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = 10 * time.Millisecond
	}

	cond, err := conductor.New(cfg)
	c.Assert(err, gc.IsNil)
	go func() { _ = cond.Run(context.Background()) }()
	return cond
}

func (s *ConductorTestSuite) stopConductor(c *gc.C, cond *conductor.Conductor) {
	cond.Stop()
	c.Assert(cond.Wait(5*time.Second), gc.Equals, true, gc.Commentf("dispatch loop did not exit after stop"))
}

// waitForEmptyBoard blocks until every posted job has been removed from the
// board or the deadline expires.
func (s *ConductorTestSuite) waitForEmptyBoard(c *gc.C) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		count, err := s.board.JobCount()
		c.Assert(err, gc.IsNil)
		if count == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.Fatal("board was not drained before the deadline")
}

func (s *ConductorTestSuite) TestEndToEndHelloGoodbye(c *gc.C) {
	helloTask := flow.NewTask(flow.TaskSpec{
		Name:     "hello-world",
		Provides: []string{"stamp"},
		Execute: func(_ context.Context, _ flow.Values) (flow.Values, error) {
			s.record("hello")
			return flow.Values{"stamp": time.Now().UTC().Format(time.RFC3339)}, nil
		},
	})
	goodbyeTask := flow.NewTask(flow.TaskSpec{
		Name:     "goodbye-world",
		Requires: []string{"stamp"},
		Execute: func(_ context.Context, inputs flow.Values) (flow.Values, error) {
			s.record("goodbye")
			if _, ok := inputs["stamp"].(string); !ok {
				return nil, xerrors.New("stamp was not bound")
			}
			return nil, nil
		},
	})
	c.Assert(s.flows.Register("hello_goodbye", func(_ flow.Values) (flow.Atom, error) {
		return flow.NewLinearFlow("hello-goodbye", helloTask, goodbyeTask), nil
	}), gc.IsNil)

	var (
		evtMu  sync.Mutex
		stages []string
	)
	book := &persistence.Logbook{Name: "hello goodbye"}
	job, err := s.board.Post("hello goodbye", book, map[string]interface{}{
		conductor.DetailFactoryKey: "hello_goodbye",
	})
	c.Assert(err, gc.IsNil)

	cond := s.startConductor(c, conductor.Config{
		Name: "test-conductor",
		OnStageEvent: func(evt conductor.StageEvent) {
			if evt.Done {
				evtMu.Lock()
				stages = append(stages, evt.Stage)
				evtMu.Unlock()
			}
		},
	})
	s.waitForEmptyBoard(c)
	s.stopConductor(c, cond)

	// Both tasks ran in order and the job never reappears.
	c.Assert(s.traceSnapshot(), gc.DeepEquals, []string{"hello", "goodbye"})
	it, err := s.board.Jobs(jobboard.IterOptions{EnsureFresh: true})
	c.Assert(err, gc.IsNil)
	c.Assert(it.Next(), gc.Equals, false, gc.Commentf("consumed job reappeared in a board iteration"))
	c.Assert(it.Close(), gc.IsNil)

	// All four stages completed, in order.
	evtMu.Lock()
	defer evtMu.Unlock()
	c.Assert(stages, gc.DeepEquals, []string{"compile", "prepare", "validate", "run"})

	// The flow detail reached its terminal state.
	details, err := s.store.ListFlowDetails(job.BookID)
	c.Assert(err, gc.IsNil)
	c.Assert(details, gc.HasLen, 1)
	c.Assert(details[0].State, gc.Equals, persistence.StateSuccess)
}

func (s *ConductorTestSuite) TestRetryableFailuresAreAbandoned(c *gc.C) {
	// Fail with an execution failure on the first dispatch; the job must
	// be abandoned and re-dispatched rather than consumed.
	numRuns := 0
	c.Assert(s.flows.Register("flaky", func(_ flow.Values) (flow.Atom, error) {
		return flow.NewLinearFlow("flaky", flow.NewTask(flow.TaskSpec{
			Name: "flaky-task",
			Execute: func(_ context.Context, _ flow.Values) (flow.Values, error) {
				s.mu.Lock()
				numRuns++
				attempt := numRuns
				s.mu.Unlock()
				if attempt == 1 {
					return nil, flow.ExecutionFailure(xerrors.New("conductor host lost connectivity"))
				}
				return nil, nil
			},
		})), nil
	}), gc.IsNil)

	_, err := s.board.Post("flaky", nil, map[string]interface{}{conductor.DetailFactoryKey: "flaky"})
	c.Assert(err, gc.IsNil)

	cond := s.startConductor(c, conductor.Config{Name: "test-conductor"})
	s.waitForEmptyBoard(c)
	s.stopConductor(c, cond)

	s.mu.Lock()
	defer s.mu.Unlock()
	c.Assert(numRuns, gc.Equals, 2, gc.Commentf("expected the job to be abandoned once and then re-dispatched"))
}

func (s *ConductorTestSuite) TestNonRetryableFailuresAreConsumed(c *gc.C) {
	numRuns := 0
	c.Assert(s.flows.Register("broken", func(_ flow.Values) (flow.Atom, error) {
		return flow.NewLinearFlow("broken", flow.NewTask(flow.TaskSpec{
			Name: "broken-task",
			Execute: func(_ context.Context, _ flow.Values) (flow.Values, error) {
				s.mu.Lock()
				numRuns++
				s.mu.Unlock()
				return nil, xerrors.New("invalid service definition")
			},
		})), nil
	}), gc.IsNil)

	_, err := s.board.Post("broken", nil, map[string]interface{}{conductor.DetailFactoryKey: "broken"})
	c.Assert(err, gc.IsNil)

	cond := s.startConductor(c, conductor.Config{Name: "test-conductor"})
	s.waitForEmptyBoard(c)
	s.stopConductor(c, cond)

	s.mu.Lock()
	defer s.mu.Unlock()
	c.Assert(numRuns, gc.Equals, 1, gc.Commentf("a non-retryable failure must not cause a re-dispatch"))
}

func (s *ConductorTestSuite) TestUnknownFactoryIsConsumed(c *gc.C) {
	_, err := s.board.Post("mystery", nil, map[string]interface{}{conductor.DetailFactoryKey: "no_such_factory"})
	c.Assert(err, gc.IsNil)

	cond := s.startConductor(c, conductor.Config{Name: "test-conductor"})
	s.waitForEmptyBoard(c)
	s.stopConductor(c, cond)
}

func (s *ConductorTestSuite) TestStopWaitSplit(c *gc.C) {
	cond := s.startConductor(c, conductor.Config{Name: "test-conductor"})

	// The loop is still running; Wait must time out.
	c.Assert(cond.Wait(time.Millisecond), gc.Equals, false)

	cond.Stop()
	// Stop is idempotent.
	cond.Stop()
	c.Assert(cond.Wait(5*time.Second), gc.Equals, true)
}
