package jobs

import (
	"context"
	"encoding/json"
	"time"
)

// Repo is the system of record for job state. Implementations must make
// status transitions atomic: a concurrent claim of the same pending job has
// exactly one winner, and a status update lands together with its
// result/error fields or not at all.
type Repo interface {
	// Create persists a new pending job.
	Create(ctx context.Context, job *Job) error

	// GetByID returns a job or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Job, error)

	// ClaimForProcessing conditionally moves a job from the given status to
	// processing. Returns false when the job is no longer in that status
	// (someone else claimed it, or it already finished). ErrNotFound when
	// the id is unknown. Claiming clears any previous error fields.
	ClaimForProcessing(ctx context.Context, id string, from Status) (bool, error)

	// UpdateStatus moves a processing job to a terminal state with its
	// result or error, atomically. ErrNotFound for unknown ids,
	// ErrConflict when the transition is illegal.
	UpdateStatus(ctx context.Context, id string, status Status, result json.RawMessage, errCode, errMessage string) error

	// UpdateResult replaces the result of a complete job (attending
	// overrides, finalize). The write lands only when the stored result is
	// not finalized and the job's UpdatedAt still equals expectedUpdatedAt,
	// so a concurrent edit cannot clobber a finalize or another override.
	// ErrNotFound for unknown ids, ErrConflict when the job is not
	// complete, already finalized, or modified since the read.
	UpdateResult(ctx context.Context, id string, result json.RawMessage, expectedUpdatedAt time.Time) error

	// ListCompleted returns complete jobs, newest first.
	ListCompleted(ctx context.Context) ([]*Job, error)

	// ListPendingIDs returns ids of pending jobs, oldest first, for the
	// poll worker.
	ListPendingIDs(ctx context.Context, limit int) ([]string, error)

	// Delete removes a job. ErrNotFound when absent; a second delete of
	// the same id reports ErrNotFound.
	Delete(ctx context.Context, id string) error
}
