// Package distributedtask is the upward-facing API over the job board and
// the conductor pool: callers submit named tasks as durable jobs and run
// worker processes that claim and execute them.
package distributedtask

import (
	"context"
	"io/ioutil"

	"github.com/hashicorp/go-multierror"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/openstack-archive/poppy-sub002/cert"
	"github.com/openstack-archive/poppy-sub002/conductor"
	"github.com/openstack-archive/poppy-sub002/flow"
	"github.com/openstack-archive/poppy-sub002/jobboard"
	"github.com/openstack-archive/poppy-sub002/persistence"
)

// Compile-time check for ensuring Client implements cert.JobPoster.
var _ cert.JobPoster = (*Client)(nil)

// Config encapsulates the settings for a distributed task client.
type Config struct {
	// The job board that durable tasks are posted to and claimed from.
	Board jobboard.Board

	// The store holding logbooks and flow details.
	Store persistence.Store

	// The registry of flow factories workers can execute.
	Flows *flow.Registry

	// Metrics recorded by workers started through this client.
	Metrics *conductor.Metrics

	// The tracer used to instrument the engine stages of dispatched
	// jobs. If not defined a no-op tracer will be used instead.
	Tracer opentracing.Tracer

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Board == nil {
		err = multierror.Append(err, xerrors.New("job board has not been provided"))
	}
	if cfg.Store == nil {
		err = multierror.Append(err, xerrors.New("persistence store has not been provided"))
	}
	if cfg.Flows == nil {
		err = multierror.Append(err, xerrors.New("flow registry has not been provided"))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Client submits tasks to the job board and runs conductor workers that
// execute them.
type Client struct {
	cfg Config
}

// NewClient creates a new distributed task client with the specified
// config.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("distributed task client: config validation failed: %w", err)
	}
	return &Client{cfg: cfg}, nil
}

// SubmitTask posts a durable job that a conductor will execute by
// building the flow registered under factory and running it with the
// provided call arguments. Values in kwargs must be JSON-serializable.
func (c *Client) SubmitTask(name, factory string, kwargs map[string]interface{}) (*jobboard.Job, error) {
	if _, err := c.cfg.Flows.Lookup(factory); err != nil {
		return nil, xerrors.Errorf("submit task %q: %w", name, err)
	}

	job, err := c.cfg.Board.Post(name, nil, map[string]interface{}{
		conductor.DetailFactoryKey: factory,
		conductor.DetailKwargsKey:  kwargs,
	})
	if err != nil {
		return nil, xerrors.Errorf("submit task %q: %w", name, err)
	}
	c.cfg.Logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"factory": factory,
	}).Info("submitted task")
	return job, nil
}

// PostJob implements cert.JobPoster.
func (c *Client) PostJob(_ context.Context, name, factory string, kwargs map[string]interface{}) error {
	_, err := c.SubmitTask(name, factory, kwargs)
	return err
}

// RunTaskWorker runs a conductor loop under the provided name until ctx
// is cancelled. It blocks for the lifetime of the worker.
func (c *Client) RunTaskWorker(ctx context.Context, name string) error {
	worker, err := c.TaskWorker(name)
	if err != nil {
		return err
	}
	return worker.Run(ctx)
}

// TaskWorker creates a named conductor worker suitable for running under
// a service group.
func (c *Client) TaskWorker(name string) (*Worker, error) {
	cond, err := conductor.New(conductor.Config{
		Name:    name,
		Board:   c.cfg.Board,
		Store:   c.cfg.Store,
		Flows:   c.cfg.Flows,
		Metrics: c.cfg.Metrics,
		Tracer:  c.cfg.Tracer,
		Logger:  c.cfg.Logger.WithField("worker", name),
	})
	if err != nil {
		return nil, xerrors.Errorf("task worker %q: %w", name, err)
	}
	return &Worker{name: name, cond: cond}, nil
}

// Worker wraps a conductor so it can run as a service-group member.
type Worker struct {
	name string
	cond *conductor.Conductor
}

// Name implements service.Service.
func (w *Worker) Name() string { return w.name }

// Run implements service.Service. It drives the conductor dispatch loop
// until ctx is cancelled; any in-flight job finishes its stages before
// the loop exits.
func (w *Worker) Run(ctx context.Context) error {
	return w.cond.Run(ctx)
}
