package jobboard

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/openstack-archive/poppy-sub002/jobboard/kv"
	"github.com/openstack-archive/poppy-sub002/persistence"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Compile-time check for ensuring KVJobBoard implements Board.
var _ Board = (*KVJobBoard)(nil)

// Config encapsulates the settings for configuring a kv-backed job board.
type Config struct {
	// The coordination backend client that arbitrates job ownership.
	Client kv.Client

	// The store for the logbook records created at post time.
	Store persistence.Store

	// The root path under which the board keeps its nodes. If not
	// specified, "/poppy/board" will be used instead.
	Path string

	// A clock instance for timing out Wait calls. If not specified, the
	// default wall-clock will be used instead.
	Clock clock.Clock

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Client == nil {
		err = multierror.Append(err, xerrors.Errorf("coordination client has not been provided"))
	}
	if cfg.Store == nil {
		err = multierror.Append(err, xerrors.Errorf("persistence store has not been provided"))
	}
	if cfg.Path == "" {
		cfg.Path = "/poppy/board"
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// jobPayload is the serialized form of a job stored on the backend.
type jobPayload struct {
	Name      string                 `json:"name"`
	BookID    uuid.UUID              `json:"book_id"`
	Details   map[string]interface{} `json:"details"`
	CreatedOn time.Time              `json:"created_on"`
}

// KVJobBoard implements a job board on top of a kv.Client. Ownership is
// tracked with ephemeral lock nodes so that a crashed owner's claims are
// automatically released by the backend when its session expires.
type KVJobBoard struct {
	cfg Config

	mu     sync.Mutex
	cached map[uuid.UUID]*Job
}

// NewKVJobBoard creates a new job board instance with the specified config
// and ensures the board's base paths exist on the backend.
func NewKVJobBoard(cfg Config) (*KVJobBoard, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("job board: config validation failed: %w", err)
	}

	b := &KVJobBoard{
		cfg:    cfg,
		cached: make(map[uuid.UUID]*Job),
	}
	for _, p := range []string{cfg.Path, b.jobsPath(), b.locksPath(), b.trashPath(), b.entitiesPath()} {
		if err := ensurePath(cfg.Client, p); err != nil {
			return nil, xerrors.Errorf("job board: %w", err)
		}
	}
	return b, nil
}

func (b *KVJobBoard) jobsPath() string     { return path.Join(b.cfg.Path, "jobs") }
func (b *KVJobBoard) locksPath() string    { return path.Join(b.cfg.Path, "locks") }
func (b *KVJobBoard) trashPath() string    { return path.Join(b.cfg.Path, "trash") }
func (b *KVJobBoard) entitiesPath() string { return path.Join(b.cfg.Path, "entities") }

func (b *KVJobBoard) jobPath(id uuid.UUID) string  { return path.Join(b.jobsPath(), id.String()) }
func (b *KVJobBoard) lockPath(id uuid.UUID) string { return path.Join(b.locksPath(), id.String()) }

// Post implements Board.
func (b *KVJobBoard) Post(name string, book *persistence.Logbook, details map[string]interface{}) (*Job, error) {
	if book == nil {
		book = &persistence.Logbook{Name: name}
	}

	// Both persistence writes must succeed before the job becomes visible
	// to board iterations; the board node is created last.
	if err := b.cfg.Store.SaveLogbook(book); err != nil {
		return nil, xerrors.Errorf("post job: save logbook: %w", err)
	}

	job := &Job{
		ID:        uuid.New(),
		Name:      name,
		BookID:    book.ID,
		Details:   details,
		CreatedOn: time.Now().UTC(),
	}
	job.LastModified = job.CreatedOn

	data, err := json.Marshal(jobPayload{
		Name:      job.Name,
		BookID:    job.BookID,
		Details:   job.Details,
		CreatedOn: job.CreatedOn,
	})
	if err != nil {
		return nil, xerrors.Errorf("post job: marshal payload: %w", err)
	}

	if err := b.cfg.Client.Create(b.jobPath(job.ID), data, false); err != nil {
		return nil, xerrors.Errorf("post job: %w", err)
	}

	b.mu.Lock()
	b.cached[job.ID] = job
	b.mu.Unlock()
	return job, nil
}

// Jobs implements Board.
func (b *KVJobBoard) Jobs(opts IterOptions) (Iterator, error) {
	children, err := b.cfg.Client.Children(b.jobsPath())
	if err != nil {
		return nil, xerrors.Errorf("iterate jobs: %w", err)
	}

	var jobs []*Job
	for _, child := range children {
		id, err := uuid.Parse(child)
		if err != nil {
			b.cfg.Logger.WithFields(logrus.Fields{"node": child, "err": err}).Warn("skipping job with malformed board node name")
			continue
		}

		job, err := b.lookupJob(id, opts.EnsureFresh)
		if err != nil {
			if xerrors.Is(err, ErrNotFound) {
				// The node disappeared mid-iteration; drop any
				// cached copy and move on.
				b.forget(id)
				continue
			}
			b.cfg.Logger.WithFields(logrus.Fields{"job": child, "err": err}).Warn("skipping job whose state could not be determined")
			continue
		}

		if opts.OnlyUnclaimed {
			state, err := b.State(job)
			if err != nil {
				b.cfg.Logger.WithFields(logrus.Fields{"job": child, "err": err}).Warn("skipping job whose state could not be determined")
				continue
			}
			if state != Unclaimed {
				continue
			}
		}
		jobs = append(jobs, job)
	}
	return &jobIterator{jobs: jobs}, nil
}

// Claim implements Board. The single atomic backend operation arbitrating
// ownership is the creation of the ephemeral lock node.
func (b *KVJobBoard) Claim(job *Job, who string) error {
	if _, err := b.cfg.Client.Get(b.jobPath(job.ID)); err != nil {
		if xerrors.Is(err, kv.ErrNoNode) {
			b.forget(job.ID)
			return xerrors.Errorf("claim job %q: %w", job.ID, ErrNotFound)
		}
		return xerrors.Errorf("claim job %q: %w", job.ID, err)
	}

	if err := b.cfg.Client.Create(b.lockPath(job.ID), []byte(who), true); err != nil {
		if xerrors.Is(err, kv.ErrNodeExists) {
			return xerrors.Errorf("claim job %q: %w", job.ID, ErrUnclaimable)
		}
		return xerrors.Errorf("claim job %q: %w", job.ID, err)
	}

	// The job may have been consumed between the existence check and the
	// lock creation; release the lock if it is now dangling.
	if _, err := b.cfg.Client.Get(b.jobPath(job.ID)); err != nil {
		_ = b.cfg.Client.Delete(b.lockPath(job.ID), kv.AnyVersion)
		b.forget(job.ID)
		return xerrors.Errorf("claim job %q: %w", job.ID, ErrNotFound)
	}
	return nil
}

// Consume implements Board.
func (b *KVJobBoard) Consume(job *Job, who string) error {
	if err := b.verifyOwner(job, who); err != nil {
		return xerrors.Errorf("consume job %q: %w", job.ID, err)
	}

	if err := b.cfg.Client.Delete(b.jobPath(job.ID), kv.AnyVersion); err != nil && !xerrors.Is(err, kv.ErrNoNode) {
		return xerrors.Errorf("consume job %q: %w", job.ID, err)
	}
	if err := b.cfg.Client.Delete(b.lockPath(job.ID), kv.AnyVersion); err != nil && !xerrors.Is(err, kv.ErrNoNode) {
		return xerrors.Errorf("consume job %q: %w", job.ID, err)
	}
	b.forget(job.ID)
	return nil
}

// Abandon implements Board.
func (b *KVJobBoard) Abandon(job *Job, who string) error {
	if err := b.verifyOwner(job, who); err != nil {
		return xerrors.Errorf("abandon job %q: %w", job.ID, err)
	}

	if err := b.cfg.Client.Delete(b.lockPath(job.ID), kv.AnyVersion); err != nil && !xerrors.Is(err, kv.ErrNoNode) {
		return xerrors.Errorf("abandon job %q: %w", job.ID, err)
	}
	return nil
}

// Trash implements Board.
func (b *KVJobBoard) Trash(job *Job, who string) error {
	if err := b.verifyOwner(job, who); err != nil {
		return xerrors.Errorf("trash job %q: %w", job.ID, err)
	}

	node, err := b.cfg.Client.Get(b.jobPath(job.ID))
	if err != nil {
		if xerrors.Is(err, kv.ErrNoNode) {
			return xerrors.Errorf("trash job %q: %w", job.ID, ErrNotFound)
		}
		return xerrors.Errorf("trash job %q: %w", job.ID, err)
	}

	// Retain the payload in the trash bin before removing the board entry.
	trashPath := path.Join(b.trashPath(), job.ID.String())
	if err := b.cfg.Client.Create(trashPath, node.Data, false); err != nil && !xerrors.Is(err, kv.ErrNodeExists) {
		return xerrors.Errorf("trash job %q: %w", job.ID, err)
	}

	if err := b.cfg.Client.Delete(b.jobPath(job.ID), kv.AnyVersion); err != nil && !xerrors.Is(err, kv.ErrNoNode) {
		return xerrors.Errorf("trash job %q: %w", job.ID, err)
	}
	if err := b.cfg.Client.Delete(b.lockPath(job.ID), kv.AnyVersion); err != nil && !xerrors.Is(err, kv.ErrNoNode) {
		return xerrors.Errorf("trash job %q: %w", job.ID, err)
	}
	b.forget(job.ID)
	return nil
}

// Wait implements Board.
func (b *KVJobBoard) Wait(timeout time.Duration) (Iterator, error) {
	watchCh, err := b.cfg.Client.WatchChildren(b.jobsPath())
	if err != nil {
		return nil, xerrors.Errorf("wait for jobs: %w", err)
	}

	// Only a claimable job short-circuits the wait. Jobs held by other
	// conductors must not, or an idle conductor would spin against the
	// backend for as long as a peer's job is in flight.
	unclaimed, err := b.hasUnclaimedJobs()
	if err != nil {
		return nil, xerrors.Errorf("wait for jobs: %w", err)
	}
	if !unclaimed {
		select {
		case <-watchCh:
		case <-b.cfg.Clock.After(timeout):
		}
	}
	return b.Jobs(IterOptions{})
}

func (b *KVJobBoard) hasUnclaimedJobs() (bool, error) {
	it, err := b.Jobs(IterOptions{OnlyUnclaimed: true})
	if err != nil {
		return false, err
	}
	defer func() { _ = it.Close() }()
	return it.Next(), nil
}

// State implements Board.
func (b *KVJobBoard) State(job *Job) (State, error) {
	if _, err := b.cfg.Client.Get(b.jobPath(job.ID)); err != nil {
		if xerrors.Is(err, kv.ErrNoNode) {
			return Complete, nil
		}
		return "", xerrors.Errorf("job state %q: %w", job.ID, err)
	}

	if _, err := b.cfg.Client.Get(b.lockPath(job.ID)); err != nil {
		if xerrors.Is(err, kv.ErrNoNode) {
			return Unclaimed, nil
		}
		return "", xerrors.Errorf("job state %q: %w", job.ID, err)
	}
	return Claimed, nil
}

// FindOwner implements Board.
func (b *KVJobBoard) FindOwner(job *Job) (string, error) {
	node, err := b.cfg.Client.Get(b.lockPath(job.ID))
	if err != nil {
		if xerrors.Is(err, kv.ErrNoNode) {
			return "", nil
		}
		return "", xerrors.Errorf("find owner %q: %w", job.ID, err)
	}
	return string(node.Data), nil
}

// JobCount implements Board.
func (b *KVJobBoard) JobCount() (int, error) {
	children, err := b.cfg.Client.Children(b.jobsPath())
	if err != nil {
		return 0, xerrors.Errorf("job count: %w", err)
	}
	return len(children), nil
}

// RegisterEntity implements Board.
func (b *KVJobBoard) RegisterEntity(kind, name string) error {
	entityPath := path.Join(b.entitiesPath(), fmt.Sprintf("%s-%s", kind, name))
	err := b.cfg.Client.Create(entityPath, []byte(name), true)
	if err != nil && !xerrors.Is(err, kv.ErrNodeExists) {
		return xerrors.Errorf("register entity %q: %w", name, err)
	}
	return nil
}

// Close implements Board.
func (b *KVJobBoard) Close() error {
	return b.cfg.Client.Close()
}

// lookupJob fetches a job by ID, serving a cached copy unless ensureFresh
// is set.
func (b *KVJobBoard) lookupJob(id uuid.UUID, ensureFresh bool) (*Job, error) {
	if !ensureFresh {
		b.mu.Lock()
		job, cached := b.cached[id]
		b.mu.Unlock()
		if cached {
			return job, nil
		}
	}

	node, err := b.cfg.Client.Get(b.jobPath(id))
	if err != nil {
		if xerrors.Is(err, kv.ErrNoNode) {
			return nil, xerrors.Errorf("lookup job %q: %w", id, ErrNotFound)
		}
		return nil, xerrors.Errorf("lookup job %q: %w", id, err)
	}

	var payload jobPayload
	if err := json.Unmarshal(node.Data, &payload); err != nil {
		return nil, xerrors.Errorf("lookup job %q: unmarshal payload: %w", id, err)
	}

	job := &Job{
		ID:           id,
		Name:         payload.Name,
		BookID:       payload.BookID,
		Details:      payload.Details,
		CreatedOn:    payload.CreatedOn,
		LastModified: node.ModifiedAt,
	}
	b.mu.Lock()
	b.cached[id] = job
	b.mu.Unlock()
	return job, nil
}

func (b *KVJobBoard) forget(id uuid.UUID) {
	b.mu.Lock()
	delete(b.cached, id)
	b.mu.Unlock()
}

// verifyOwner checks that who currently owns the job.
func (b *KVJobBoard) verifyOwner(job *Job, who string) error {
	node, err := b.cfg.Client.Get(b.lockPath(job.ID))
	if err != nil {
		if xerrors.Is(err, kv.ErrNoNode) {
			// Distinguish "job is gone" from "job is not claimed".
			if _, jobErr := b.cfg.Client.Get(b.jobPath(job.ID)); xerrors.Is(jobErr, kv.ErrNoNode) {
				return ErrNotFound
			}
			return ErrNotOwner
		}
		return err
	}
	if string(node.Data) != who {
		return ErrNotOwner
	}
	return nil
}

// ensurePath creates the node at p, together with any missing parents, if
// it does not exist yet.
func ensurePath(client kv.Client, p string) error {
	var cur string
	for _, segment := range strings.Split(strings.Trim(p, "/"), "/") {
		cur = cur + "/" + segment
		err := client.Create(cur, nil, false)
		if err != nil && !xerrors.Is(err, kv.ErrNodeExists) {
			return err
		}
	}
	return nil
}

// jobIterator is an Iterator over a snapshot of board contents.
type jobIterator struct {
	jobs     []*Job
	curIndex int
}

// Next implements Iterator.
func (i *jobIterator) Next() bool {
	if i.curIndex >= len(i.jobs) {
		return false
	}
	i.curIndex++
	return true
}

// Error implements Iterator.
func (i *jobIterator) Error() error { return nil }

// Close implements Iterator.
func (i *jobIterator) Close() error { return nil }

// Job implements Iterator.
func (i *jobIterator) Job() *Job { return i.jobs[i.curIndex-1] }
