package workerproc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"surgeval-backend/internal/queue"
)

type stubProcessor struct {
	calls []string
	err   error
}

func (s *stubProcessor) Process(ctx context.Context, id string, retry bool) error {
	s.calls = append(s.calls, id)
	return s.err
}

func encodeMessage(t *testing.T, jobID string) string {
	t.Helper()
	body, err := queue.Message{JobID: jobID, RequestID: "req-1"}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return body
}

func TestHandleMessageDispatches(t *testing.T) {
	p := &stubProcessor{}
	if err := HandleMessage(context.Background(), p, encodeMessage(t, "job-1")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(p.calls) != 1 || p.calls[0] != "job-1" {
		t.Fatalf("calls = %v", p.calls)
	}
}

func TestHandleMessageEmptyBody(t *testing.T) {
	p := &stubProcessor{}
	err := HandleMessage(context.Background(), p, "   ")
	var empty ErrEmptyBody
	if !errors.As(err, &empty) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	if len(p.calls) != 0 {
		t.Fatal("processor should not be called for empty body")
	}
}

func TestHandleMessageBadJSON(t *testing.T) {
	err := HandleMessage(context.Background(), &stubProcessor{}, "not json")
	var decode ErrDecode
	if !errors.As(err, &decode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if decode.Meta.BodyLen != len("not json") || decode.Meta.BodySHA == "" {
		t.Fatalf("meta = %+v", decode.Meta)
	}
}

func TestHandleMessageMissingJobID(t *testing.T) {
	err := HandleMessage(context.Background(), &stubProcessor{}, `{"version":1}`)
	var decode ErrDecode
	if !errors.As(err, &decode) {
		t.Fatalf("expected ErrDecode for missing jobId, got %v", err)
	}
}

func TestHandleMessageProcessError(t *testing.T) {
	p := &stubProcessor{err: fmt.Errorf("db unavailable")}
	err := HandleMessage(context.Background(), p, encodeMessage(t, "job-1"))
	var perr ErrProcess
	if !errors.As(err, &perr) {
		t.Fatalf("expected ErrProcess, got %v", err)
	}
	if perr.JobID != "job-1" || perr.RequestID != "req-1" {
		t.Fatalf("error fields: %+v", perr)
	}
}
