package jobboard

import "golang.org/x/xerrors"

var (
	// ErrNotFound is returned when an operation targets a job that no
	// longer exists on the board.
	ErrNotFound = xerrors.New("job not found")

	// ErrUnclaimable is returned when a claim attempt loses to another
	// owner.
	ErrUnclaimable = xerrors.New("job cannot be claimed")

	// ErrNotOwner is returned when consume, abandon or trash is attempted
	// by a caller that does not currently own the job.
	ErrNotOwner = xerrors.New("job is not owned by caller")
)
