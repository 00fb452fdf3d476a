package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func createJob(t *testing.T, repo *MemoryRepo, id string, status Status) {
	t.Helper()
	job := &Job{ID: id, Status: StatusPending, SourceRef: "u", ProcedureID: "p"}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if status == StatusPending {
		return
	}
	if _, err := repo.ClaimForProcessing(context.Background(), id, StatusPending); err != nil {
		t.Fatalf("claim: %v", err)
	}
	switch status {
	case StatusComplete:
		if err := repo.UpdateStatus(context.Background(), id, StatusComplete, json.RawMessage(`{"isFinalized":false}`), "", ""); err != nil {
			t.Fatalf("complete: %v", err)
		}
	case StatusFailed:
		if err := repo.UpdateStatus(context.Background(), id, StatusFailed, nil, "code", "boom"); err != nil {
			t.Fatalf("fail: %v", err)
		}
	}
}

func TestMemoryRepoIllegalTransitions(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		from Status
		to   Status
	}{
		{"pending to complete", StatusPending, StatusComplete},
		{"pending to failed", StatusPending, StatusFailed},
		{"complete to failed", StatusComplete, StatusFailed},
		{"complete to complete", StatusComplete, StatusComplete},
		{"failed to complete", StatusFailed, StatusComplete},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewMemoryRepo()
			createJob(t, repo, "j", tc.from)
			before, _ := repo.GetByID(ctx, "j")
			err := repo.UpdateStatus(ctx, "j", tc.to, nil, "", "x")
			if !errors.Is(err, ErrConflict) {
				t.Fatalf("expected ErrConflict, got %v", err)
			}
			after, _ := repo.GetByID(ctx, "j")
			if after.Status != before.Status || after.UpdatedAt != before.UpdatedAt {
				t.Error("illegal transition modified the job")
			}
		})
	}
}

func TestMemoryRepoTerminalFieldInvariant(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	createJob(t, repo, "done", StatusComplete)
	createJob(t, repo, "broken", StatusFailed)

	done, _ := repo.GetByID(ctx, "done")
	if done.Result == nil || done.ErrorMessage != "" {
		t.Error("complete job must have result and no error")
	}
	broken, _ := repo.GetByID(ctx, "broken")
	if broken.Result != nil || broken.ErrorMessage == "" {
		t.Error("failed job must have error and no result")
	}
}

func TestMemoryRepoRetryClaimClearsError(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	createJob(t, repo, "j", StatusFailed)

	ok, err := repo.ClaimForProcessing(ctx, "j", StatusFailed)
	if err != nil || !ok {
		t.Fatalf("retry claim: ok=%v err=%v", ok, err)
	}
	job, _ := repo.GetByID(ctx, "j")
	if job.Status != StatusProcessing {
		t.Fatalf("status = %s", job.Status)
	}
	if job.ErrorCode != "" || job.ErrorMessage != "" {
		t.Error("retry claim should clear error fields")
	}
}

func TestMemoryRepoUpdateStatusIllegalTarget(t *testing.T) {
	repo := NewMemoryRepo()
	createJob(t, repo, "j", StatusPending)
	err := repo.UpdateStatus(context.Background(), "j", StatusProcessing, nil, "", "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for non-terminal target, got %v", err)
	}
}

func TestMemoryRepoUpdateResultStaleToken(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	createJob(t, repo, "j", StatusComplete)

	before, _ := repo.GetByID(ctx, "j")
	if err := repo.UpdateResult(ctx, "j", json.RawMessage(`{"isFinalized":false,"attendingAdditionalComments":"first"}`), before.UpdatedAt); err != nil {
		t.Fatalf("first write: %v", err)
	}
	// The original token no longer matches after the first write.
	err := repo.UpdateResult(ctx, "j", json.RawMessage(`{"isFinalized":false}`), before.UpdatedAt)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("stale token: %v", err)
	}
	job, _ := repo.GetByID(ctx, "j")
	if err := repo.UpdateResult(ctx, "j", json.RawMessage(`{"isFinalized":false}`), job.UpdatedAt); err != nil {
		t.Fatalf("fresh token should win: %v", err)
	}
}

func TestMemoryRepoUpdateResultFinalizedGuard(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	createJob(t, repo, "j", StatusComplete)

	job, _ := repo.GetByID(ctx, "j")
	if err := repo.UpdateResult(ctx, "j", json.RawMessage(`{"isFinalized":true}`), job.UpdatedAt); err != nil {
		t.Fatalf("finalize write: %v", err)
	}
	job, _ = repo.GetByID(ctx, "j")
	err := repo.UpdateResult(ctx, "j", json.RawMessage(`{"isFinalized":false}`), job.UpdatedAt)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("finalized result accepted a write: %v", err)
	}
}

func TestMemoryRepoGetUnknown(t *testing.T) {
	repo := NewMemoryRepo()
	if _, err := repo.GetByID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepoListCompletedNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	older := &Job{ID: "a", Status: StatusPending, SourceRef: "u", ProcedureID: "p", CreatedAt: time.Now().Add(-time.Hour)}
	newer := &Job{ID: "b", Status: StatusPending, SourceRef: "u", ProcedureID: "p", CreatedAt: time.Now()}
	for _, j := range []*Job{older, newer} {
		if err := repo.Create(ctx, j); err != nil {
			t.Fatalf("Create: %v", err)
		}
		repo.ClaimForProcessing(ctx, j.ID, StatusPending)
		repo.UpdateStatus(ctx, j.ID, StatusComplete, json.RawMessage(`{}`), "", "")
	}
	got, err := repo.ListCompleted(ctx)
	if err != nil {
		t.Fatalf("ListCompleted: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestMemoryRepoCloneIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	createJob(t, repo, "j", StatusComplete)
	first, _ := repo.GetByID(ctx, "j")
	first.Result[0] = 'X'
	second, _ := repo.GetByID(ctx, "j")
	if second.Result[0] == 'X' {
		t.Fatal("repo returned shared result slice")
	}
}
