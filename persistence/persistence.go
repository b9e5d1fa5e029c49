// Package persistence defines the durable record types that the flow engine
// and the job board use to resume or audit job execution, together with the
// Store interface that concrete backends implement.
package persistence

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

// ErrNotFound is returned when a logbook or flow-detail lookup fails.
var ErrNotFound = xerrors.New("not found")

// Flow-detail states as persisted by the engine.
const (
	StatePending  = "PENDING"
	StateRunning  = "RUNNING"
	StateSuccess  = "SUCCESS"
	StateFailure  = "FAILURE"
	StateReverted = "REVERTED"
)

// Logbook is the per-job audit record. It is created exactly once when a
// job is posted and never mutated by the board; the engine appends
// flow-detail records to it as execution progresses.
type Logbook struct {
	// A unique identifier for the logbook.
	ID uuid.UUID

	// A human-readable name; not required to be unique.
	Name string

	// The timestamp when the logbook was created.
	CreatedAt time.Time

	// The timestamp when the logbook was last written.
	UpdatedAt time.Time
}

// FlowDetail captures the progress of a single flow run against a logbook.
// The engine saves one before it starts running and updates it with the
// terminal state and the produced symbol table when the run completes.
type FlowDetail struct {
	// A unique identifier for the flow detail.
	ID uuid.UUID

	// The logbook this detail belongs to.
	BookID uuid.UUID

	// The name of the flow that was executed.
	Name string

	// One of the State* constants.
	State string

	// The named values produced by the flow's tasks. Values must be
	// JSON-serializable.
	Results map[string]interface{}

	// The timestamp when the detail was last written.
	UpdatedAt time.Time
}

// Store is implemented by backends that can durably persist logbooks and
// flow details. Save calls are upserts keyed by record ID.
type Store interface {
	// SaveLogbook creates or updates a logbook record.
	SaveLogbook(book *Logbook) error

	// GetLogbook looks up a logbook by its ID.
	GetLogbook(id uuid.UUID) (*Logbook, error)

	// DeleteLogbook removes a logbook and all of its flow details.
	DeleteLogbook(id uuid.UUID) error

	// SaveFlowDetail creates or updates a flow-detail record.
	SaveFlowDetail(detail *FlowDetail) error

	// GetFlowDetail looks up a flow detail by its ID.
	GetFlowDetail(id uuid.UUID) (*FlowDetail, error)

	// ListFlowDetails returns the flow details attached to a logbook.
	ListFlowDetails(bookID uuid.UUID) ([]*FlowDetail, error)
}
