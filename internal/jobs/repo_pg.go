package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo is the Postgres-backed Repo. Claims and terminal updates rely on
// conditional UPDATEs so concurrent workers cannot process the same job.
type PGRepo struct {
	db *sql.DB
}

// NewPGRepo wraps a database handle.
func NewPGRepo(db *sql.DB) *PGRepo {
	return &PGRepo{db: db}
}

const jobColumns = `id, status, source_ref, procedure_id, subject_name, additional_context,
	result, error_code, error_message, created_at, updated_at, started_at, completed_at`

func (r *PGRepo) Create(ctx context.Context, job *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, source_ref, procedure_id, subject_name, additional_context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		job.ID, string(job.Status), job.SourceRef, job.ProcedureID,
		nullIfEmpty(job.SubjectName), nullIfEmpty(job.AdditionalContext),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

func (r *PGRepo) ClaimForProcessing(ctx context.Context, id string, from Status) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $3, started_at = now(), updated_at = now(), error_code = NULL, error_message = NULL
		WHERE id = $1 AND status = $2`,
		id, string(from), string(StatusProcessing),
	)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if affected == 1 {
		return true, nil
	}
	// Distinguish "already claimed" from "unknown id".
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *PGRepo) UpdateStatus(ctx context.Context, id string, status Status, result json.RawMessage, errCode, errMessage string) error {
	if !status.Terminal() {
		return ErrConflict
	}
	var resultArg any
	if result != nil {
		resultArg = []byte(result)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2, result = $3, error_code = $4, error_message = $5, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = $6`,
		id, string(status), resultArg, nullIfEmpty(errCode), nullIfEmpty(errMessage), string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if affected == 1 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *PGRepo) UpdateResult(ctx context.Context, id string, result json.RawMessage, expectedUpdatedAt time.Time) error {
	// Conditional write: the finalized check and the updated_at token make
	// result edits first-writer-wins, so a stale override cannot clobber a
	// finalize that landed after the caller's read.
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET result = $2, updated_at = now()
		WHERE id = $1 AND status = $3 AND (result->>'isFinalized') = 'false' AND updated_at = $4`,
		id, []byte(result), string(StatusComplete), expectedUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update job result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job result: %w", err)
	}
	if affected == 1 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update job result: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *PGRepo) ListCompleted(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY created_at DESC`,
		string(StatusComplete),
	)
	if err != nil {
		return nil, fmt.Errorf("list completed jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list completed jobs: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list completed jobs: %w", err)
	}
	return out, nil
}

func (r *PGRepo) ListPendingIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		string(StatusPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list pending jobs: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	return ids, nil
}

func (r *PGRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job          Job
		status       string
		subjectName  sql.NullString
		addlContext  sql.NullString
		result       []byte
		errorCode    sql.NullString
		errorMessage sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
	)
	err := row.Scan(
		&job.ID, &status, &job.SourceRef, &job.ProcedureID, &subjectName, &addlContext,
		&result, &errorCode, &errorMessage, &job.CreatedAt, &job.UpdatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.SubjectName = subjectName.String
	job.AdditionalContext = addlContext.String
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	job.ErrorCode = errorCode.String
	job.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	return &job, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Repo = (*PGRepo)(nil)
