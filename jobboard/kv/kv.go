// Package kv defines the capability set that the job board requires from a
// coordination backend: atomic node creation, version-checked writes and
// deletes, child listing and change notification. Implementations must be
// linearizable; the board's claim semantics depend on it.
package kv

import (
	"time"

	"golang.org/x/xerrors"
)

var (
	// ErrNodeExists is returned when creating a node whose path is taken.
	ErrNodeExists = xerrors.New("node already exists")

	// ErrNoNode is returned when a node lookup or mutation targets a path
	// that does not exist.
	ErrNoNode = xerrors.New("node not found")

	// ErrVersionMismatch is returned by compare-and-set style mutations
	// when the supplied version no longer matches the stored node.
	ErrVersionMismatch = xerrors.New("node version mismatch")
)

// AnyVersion can be passed to Set and Delete to skip the version check.
const AnyVersion = int32(-1)

// Node describes a stored node and the metadata required for
// compare-and-set operations against it.
type Node struct {
	// The full path of the node.
	Path string

	// The stored payload.
	Data []byte

	// A monotonic counter incremented by the backend on every write.
	Version int32

	// The timestamp when the node was created.
	CreatedAt time.Time

	// The timestamp when the node was last written.
	ModifiedAt time.Time
}

// Client is implemented by coordination backends that the job board can run
// against. All mutations must be atomic with respect to every other client
// of the same backend, across process and host boundaries.
type Client interface {
	// Create atomically creates a node at path. If ephemeral is set, the
	// node is automatically removed when the client session terminates.
	// It fails with ErrNodeExists if the path is already present.
	Create(path string, data []byte, ephemeral bool) error

	// Get returns the node at path or ErrNoNode.
	Get(path string) (*Node, error)

	// Set overwrites the node payload iff the stored version matches the
	// provided one (or version is AnyVersion). It fails with ErrNoNode or
	// ErrVersionMismatch.
	Set(path string, data []byte, version int32) error

	// Delete removes the node iff the stored version matches the provided
	// one (or version is AnyVersion). It fails with ErrNoNode or
	// ErrVersionMismatch.
	Delete(path string, version int32) error

	// Children returns the names (not full paths) of the children of path.
	// A missing path yields an empty list, not an error.
	Children(path string) ([]string, error)

	// WatchChildren returns a channel that receives a single value the
	// next time the child list of path changes. Watches are one-shot;
	// callers re-arm by calling WatchChildren again.
	WatchChildren(path string) (<-chan struct{}, error)

	// Close terminates the client session, releasing any ephemeral nodes.
	Close() error
}
