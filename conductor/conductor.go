// Package conductor implements the dispatch loop that claims jobs from a
// job board and executes them via the flow engine. Multiple conductor
// processes can run against the same board; within one conductor the loop
// is single-threaded and strictly sequential, so cross-job concurrency
// comes from running more conductors, not from intra-process parallelism.
package conductor

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/openstack-archive/poppy-sub002/flow"
	"github.com/openstack-archive/poppy-sub002/jobboard"
	"github.com/openstack-archive/poppy-sub002/persistence"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Job detail keys under which posted jobs carry their flow-factory
// reference and call arguments.
const (
	DetailFactoryKey = "factory"
	DetailKwargsKey  = "kwargs"
)

// The engine stages a dispatched job runs through, in order.
var stageNames = []string{"compile", "prepare", "validate", "run"}

// StageEvent describes the start or end of an engine stage for a
// dispatched job.
type StageEvent struct {
	// The job being dispatched.
	Job *jobboard.Job

	// One of compile, prepare, validate, run.
	Stage string

	// False for the start event, true for the end event.
	Done bool

	// The stage error; only populated on end events.
	Err error
}

// Config encapsulates the settings for configuring a conductor.
type Config struct {
	// The conductor name, used to build its board ownership identity. If
	// not specified, "conductor" will be used instead.
	Name string

	// The job board to dispatch from.
	Board jobboard.Board

	// The store holding logbooks and flow details for dispatched jobs.
	Store persistence.Store

	// The registry resolving the flow-factory references stored with
	// posted jobs.
	Flows *flow.Registry

	// The maximum time to block on the board when a full pass dispatched
	// no jobs. If not specified, a default value of 1s will be used
	// instead.
	WaitTimeout time.Duration

	// A clock instance for timing out Wait calls. If not specified, the
	// default wall-clock will be used instead.
	Clock clock.Clock

	// The tracer used to instrument engine stages. If not defined a
	// no-op tracer will be used instead.
	Tracer opentracing.Tracer

	// The collectors tracking dispatch outcomes. If not defined,
	// unregistered collectors will be used instead.
	Metrics *Metrics

	// An optional callback invoked with the start/end event pair of each
	// engine stage.
	OnStageEvent func(evt StageEvent)

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Board == nil {
		err = multierror.Append(err, xerrors.Errorf("job board has not been provided"))
	}
	if cfg.Store == nil {
		err = multierror.Append(err, xerrors.Errorf("persistence store has not been provided"))
	}
	if cfg.Flows == nil {
		err = multierror.Append(err, xerrors.Errorf("flow registry has not been provided"))
	}
	if cfg.Name == "" {
		cfg.Name = "conductor"
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Tracer == nil {
		cfg.Tracer = opentracing.NoopTracer{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Conductor claims jobs from a board and runs them to a consume-or-abandon
// decision.
type Conductor struct {
	cfg Config
	who string

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a new conductor instance with the specified config.
func New(cfg Config) (*Conductor, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("conductor: config validation failed: %w", err)
	}

	host, _ := os.Hostname()
	return &Conductor{
		cfg:    cfg,
		who:    fmt.Sprintf("%s@%s:%d", cfg.Name, host, os.Getpid()),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Name implements service.Service.
func (c *Conductor) Name() string { return c.cfg.Name }

// Who returns the ownership identity this conductor claims jobs under.
func (c *Conductor) Who() string { return c.who }

// Run executes the dispatch loop until the context is cancelled or Stop is
// requested. An in-flight job always runs to its consume-or-abandon
// decision before the loop exits.
func (c *Conductor) Run(ctx context.Context) error {
	defer close(c.doneCh)

	logger := c.cfg.Logger.WithField("who", c.who)
	logger.Info("starting conductor")
	defer logger.Info("stopped conductor")

	if err := c.cfg.Board.RegisterEntity("conductor", c.who); err != nil {
		logger.WithField("err", err).Warn("could not register conductor entity; continuing")
	}

	for {
		if c.interrupted(ctx) {
			return nil
		}

		dispatched, err := c.runOnePass(ctx)
		if err != nil {
			logger.WithField("err", err).Warn("board iteration failed; backing off")
		}

		if dispatched == 0 && !c.interrupted(ctx) {
			it, waitErr := c.cfg.Board.Wait(c.cfg.WaitTimeout)
			if waitErr != nil {
				logger.WithField("err", waitErr).Warn("board wait failed; backing off")
				select {
				case <-c.cfg.Clock.After(c.cfg.WaitTimeout):
				case <-ctx.Done():
				case <-c.stopCh:
				}
			}
			if it != nil {
				_ = it.Close()
			}
		}
	}
}

// Stop requests cessation of the dispatch loop. It is non-blocking; use
// Wait to confirm that the loop has actually exited.
func (c *Conductor) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Wait blocks the caller until the dispatch loop has exited, returning
// false if timeout elapses first.
func (c *Conductor) Wait(timeout time.Duration) bool {
	select {
	case <-c.doneCh:
		return true
	case <-c.cfg.Clock.After(timeout):
		return false
	}
}

func (c *Conductor) interrupted(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// runOnePass iterates the board once, claiming and dispatching every job it
// wins, and returns the number of jobs dispatched.
func (c *Conductor) runOnePass(ctx context.Context) (int, error) {
	it, err := c.cfg.Board.Jobs(jobboard.IterOptions{EnsureFresh: true})
	if err != nil {
		return 0, err
	}
	defer func() { _ = it.Close() }()

	dispatched := 0
	for it.Next() {
		if c.interrupted(ctx) {
			break
		}

		job := it.Job()
		if err := c.cfg.Board.Claim(job, c.who); err != nil {
			if xerrors.Is(err, jobboard.ErrUnclaimable) || xerrors.Is(err, jobboard.ErrNotFound) {
				// Another conductor won the job, or it vanished.
				continue
			}
			c.cfg.Logger.WithFields(logrus.Fields{"job": job.ID, "err": err}).Warn("claim attempt failed; skipping job")
			continue
		}

		c.cfg.Metrics.jobsClaimed.Inc()
		dispatched++
		c.dispatch(ctx, job)
	}
	return dispatched, it.Error()
}

// dispatch builds an engine for a claimed job, runs the four stages and
// decides whether to consume or abandon the job.
func (c *Conductor) dispatch(ctx context.Context, job *jobboard.Job) {
	logger := c.cfg.Logger.WithFields(logrus.Fields{"job": job.ID, "job_name": job.Name})

	runErr := c.runJob(ctx, job, logger)

	// Abandon only when the run failed purely with retryable failure
	// classes; re-running the same flow elsewhere may then succeed. Every
	// other outcome consumes the job: partial failure is expected to have
	// been handled by the flow's own revert logic or persisted state, so
	// re-running the same flow with the same inputs is not meaningful.
	if runErr != nil && flow.IsRetryable(runErr) {
		logger.WithField("err", runErr).Warn("job failed with retryable failures; abandoning")
		if err := c.cfg.Board.Abandon(job, c.who); err != nil {
			logger.WithField("err", err).Error("could not abandon job")
			return
		}
		c.cfg.Metrics.jobsAbandoned.Inc()
		return
	}

	if runErr != nil {
		logger.WithField("err", runErr).Error("job failed; consuming")
	}
	if err := c.cfg.Board.Consume(job, c.who); err != nil {
		logger.WithField("err", err).Error("could not consume job")
		return
	}
	c.cfg.Metrics.jobsConsumed.Inc()
}

func (c *Conductor) runJob(ctx context.Context, job *jobboard.Job, logger *logrus.Entry) error {
	factoryName, _ := job.Details[DetailFactoryKey].(string)
	factory, err := c.cfg.Flows.Lookup(factoryName)
	if err != nil {
		return xerrors.Errorf("job %q: %w", job.ID, err)
	}

	kwargs := flow.Values{}
	if stored, ok := job.Details[DetailKwargsKey].(map[string]interface{}); ok {
		kwargs = flow.Values(stored)
	}

	jobFlow, err := factory(kwargs)
	if err != nil {
		return xerrors.Errorf("job %q: build flow: %w", job.ID, err)
	}

	book, err := c.cfg.Store.GetLogbook(job.BookID)
	if err != nil {
		return flow.StorageFailure(xerrors.Errorf("job %q: load logbook: %w", job.ID, err))
	}

	engine, err := flow.NewEngine(flow.Config{
		Flow:    jobFlow,
		Store:   c.cfg.Store,
		Book:    book,
		Initial: kwargs,
		Tracer:  c.cfg.Tracer,
		Logger:  logger,
	})
	if err != nil {
		return xerrors.Errorf("job %q: %w", job.ID, err)
	}

	stages := []func() error{
		engine.Compile,
		engine.Prepare,
		engine.Validate,
		func() error { return engine.Run(ctx) },
	}
	for i, stage := range stages {
		c.emitStageEvent(StageEvent{Job: job, Stage: stageNames[i]})
		logger.WithField("stage", stageNames[i]).Debug("stage started")

		err := stage()

		c.emitStageEvent(StageEvent{Job: job, Stage: stageNames[i], Done: true, Err: err})
		if err != nil {
			c.cfg.Metrics.stageFailures.WithLabelValues(stageNames[i]).Inc()
			return err
		}
		logger.WithField("stage", stageNames[i]).Debug("stage completed")
	}
	return nil
}

func (c *Conductor) emitStageEvent(evt StageEvent) {
	if c.cfg.OnStageEvent != nil {
		c.cfg.OnStageEvent(evt)
	}
}
