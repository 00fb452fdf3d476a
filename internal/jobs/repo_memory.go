package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for development and tests. All methods are
// safe for concurrent use; the mutex makes claims and status updates atomic.
type MemoryRepo struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewMemoryRepo returns an empty in-memory repo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{jobs: make(map[string]*Job)}
}

func cloneJob(j *Job) *Job {
	out := *j
	if j.Result != nil {
		out.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func (r *MemoryRepo) Create(ctx context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	stored := cloneJob(job)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = stored.CreatedAt
	r.jobs[stored.ID] = stored
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(j), nil
}

func (r *MemoryRepo) ClaimForProcessing(ctx context.Context, id string, from Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if j.Status != from {
		return false, nil
	}
	now := time.Now().UTC()
	j.Status = StatusProcessing
	j.StartedAt = &now
	j.UpdatedAt = now
	j.ErrorCode = ""
	j.ErrorMessage = ""
	return true, nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, status Status, result json.RawMessage, errCode, errMessage string) error {
	if !status.Terminal() {
		return ErrConflict
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !legalTransition(j.Status, status) {
		return ErrConflict
	}
	now := time.Now().UTC()
	j.Status = status
	j.UpdatedAt = now
	switch status {
	case StatusComplete:
		j.Result = append(json.RawMessage(nil), result...)
		j.ErrorCode = ""
		j.ErrorMessage = ""
		j.CompletedAt = &now
	case StatusFailed:
		j.Result = nil
		j.ErrorCode = errCode
		j.ErrorMessage = errMessage
		j.CompletedAt = &now
	}
	return nil
}

func (r *MemoryRepo) UpdateResult(ctx context.Context, id string, result json.RawMessage, expectedUpdatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != StatusComplete {
		return ErrConflict
	}
	// A stale token means someone else wrote between the caller's read and
	// this write; a finalized result never accepts another write.
	if !j.UpdatedAt.Equal(expectedUpdatedAt) || resultFinalized(j.Result) {
		return ErrConflict
	}
	j.Result = append(json.RawMessage(nil), result...)
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func resultFinalized(raw json.RawMessage) bool {
	var flags struct {
		IsFinalized bool `json:"isFinalized"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &flags) != nil {
		return false
	}
	return flags.IsFinalized
}

func (r *MemoryRepo) ListCompleted(ctx context.Context) ([]*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Job
	for _, j := range r.jobs {
		if j.Status == StatusComplete {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) ListPendingIDs(ctx context.Context, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []*Job
	for _, j := range r.jobs {
		if j.Status == StatusPending {
			pending = append(pending, j)
		}
	}
	sort.Slice(pending, func(i, k int) bool {
		return pending[i].CreatedAt.Before(pending[k].CreatedAt)
	})
	ids := make([]string, 0, len(pending))
	for _, j := range pending {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, j.ID)
	}
	return ids, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
