// Package jobboard provides a durable job board backed by a linearizable
// coordination service. Jobs posted to the board can be claimed by exactly
// one owner at a time; the coordination backend is the sole arbiter of
// ownership so the guarantee holds across process and host boundaries.
package jobboard

import (
	"time"

	"github.com/google/uuid"
	"github.com/openstack-archive/poppy-sub002/persistence"
)

// State describes the ownership state of a job on the board.
type State string

const (
	// Unclaimed jobs are eligible for claiming by any conductor.
	Unclaimed State = "UNCLAIMED"

	// Claimed jobs are owned by exactly one conductor.
	Claimed State = "CLAIMED"

	// Complete jobs have been consumed or trashed and no longer appear in
	// board iterations.
	Complete State = "COMPLETE"
)

// Job is a durable, named unit of deferred work. A job's identity is
// immutable once posted; only its ownership and its persisted flow detail
// mutate over its lifetime.
type Job struct {
	// A unique identifier for the job, assigned at post time.
	ID uuid.UUID

	// A human-readable name; not required to be unique.
	Name string

	// The logbook created for this job when it was posted.
	BookID uuid.UUID

	// An opaque payload carrying the flow-factory reference and its call
	// arguments. Values must be JSON-serializable.
	Details map[string]interface{}

	// The timestamp when the job was posted.
	CreatedOn time.Time

	// The timestamp when the backing board entry was last written.
	LastModified time.Time
}

// Iterator is implemented by objects that can traverse board contents.
type Iterator interface {
	// Next advances the iterator. If no more jobs are available or an
	// error occurs, calls to Next() return false.
	Next() bool

	// Error returns the last error encountered by the iterator.
	Error() error

	// Close releases any resources associated with an iterator.
	Close() error

	// Job returns the currently fetched job.
	Job() *Job
}

// IterOptions tunes a board traversal.
type IterOptions struct {
	// OnlyUnclaimed restricts the traversal to jobs with no current owner.
	OnlyUnclaimed bool

	// EnsureFresh forces a re-read of each job payload from the backend
	// instead of serving locally cached copies.
	EnsureFresh bool
}

// Board is implemented by job board backends. All mutating operations on a
// missing job fail with ErrNotFound; ownership violations fail with
// ErrUnclaimable (claim) or ErrNotOwner (consume/abandon/trash) so that
// callers can tell "job is gone" from "job is not mine" from "job is
// already claimed".
type Board interface {
	// Post atomically creates a new board entry together with its logbook
	// record. The job becomes visible to Jobs() only after both writes
	// have succeeded.
	Post(name string, book *persistence.Logbook, details map[string]interface{}) (*Job, error)

	// Jobs returns an iterator over the current board contents. Ordering
	// by post time is best-effort, not guaranteed. A job whose state
	// cannot be determined is skipped with a warning rather than aborting
	// the traversal.
	Jobs(opts IterOptions) (Iterator, error)

	// Claim makes who the owner of the job. It fails with ErrUnclaimable
	// if another owner currently holds it and with ErrNotFound if the job
	// no longer exists. Claim is atomic with respect to all other
	// claimers.
	Claim(job *Job, who string) error

	// Consume permanently removes a job owned by who from the board.
	Consume(job *Job, who string) error

	// Abandon releases ownership of a job, returning it to Unclaimed so
	// that any conductor (including who) may reclaim it.
	Abandon(job *Job, who string) error

	// Trash permanently removes a job owned by who from the board while
	// retaining its payload in a side location for postmortem analysis.
	Trash(job *Job, who string) error

	// Wait blocks up to timeout for new postings and returns an iterator
	// over the board. The iterator may legitimately be empty if jobs were
	// removed by others before the caller iterates.
	Wait(timeout time.Duration) (Iterator, error)

	// State reports the derived ownership state of the job.
	State(job *Job) (State, error)

	// FindOwner returns the current owner of the job, or an empty string
	// when the job is unclaimed.
	FindOwner(job *Job) (string, error)

	// JobCount returns an advisory (possibly stale) count of board jobs.
	JobCount() (int, error)

	// RegisterEntity announces a board participant for observability.
	// Registration is best-effort and not required for correctness.
	RegisterEntity(kind, name string) error

	// Close releases the board's backend resources.
	Close() error
}
