package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"surgeval-backend/internal/evaluate"
	"surgeval-backend/internal/queue"
	"surgeval-backend/internal/report"
	"surgeval-backend/internal/rubric"
	"surgeval-backend/internal/shared/telemetry"
	"surgeval-backend/internal/transcribe"
)

const (
	defaultTranscribeTimeout = 5 * time.Minute
	defaultEvaluateTimeout   = 3 * time.Minute

	// maxErrorMessageLen caps persisted failure messages.
	maxErrorMessageLen = 500
)

// Service orchestrates the job pipeline: submission, the state machine,
// status reads, attending overrides, finalize and notify.
type Service struct {
	Repo        Repo
	Rubrics     rubric.Catalog
	Transcriber transcribe.Transcriber
	Evaluator   evaluate.Evaluator
	Mailer      report.Mailer
	Queue       queue.Client

	TranscribeTimeout time.Duration
	EvaluateTimeout   time.Duration
}

// Submit validates the input, persists a pending job and triggers
// processing. Processing is triggered at-least-once; the atomic claim in
// Process makes duplicate triggers safe.
func (s *Service) Submit(ctx context.Context, in SubmitInput, requestID string) (*Job, error) {
	if strings.TrimSpace(in.MediaURL) == "" {
		return nil, fmt.Errorf("%w: mediaUrl is required", ErrValidation)
	}
	if strings.TrimSpace(in.ProcedureID) == "" {
		return nil, fmt.Errorf("%w: procedureId is required", ErrValidation)
	}
	r, err := s.Rubrics.Get(in.ProcedureID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown procedure: %s", ErrValidation, in.ProcedureID)
	}

	job := &Job{
		ID:                uuid.NewString(),
		Status:            StatusPending,
		SourceRef:         strings.TrimSpace(in.MediaURL),
		ProcedureID:       r.ID,
		SubjectName:       strings.TrimSpace(in.SubjectName),
		AdditionalContext: strings.TrimSpace(in.AdditionalContext),
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	telemetry.Info("job.submitted", map[string]any{
		"request_id":   requestID,
		"job_id":       job.ID,
		"procedure_id": job.ProcedureID,
	})
	s.trigger(job.ID, requestID)
	return job, nil
}

// trigger enqueues the job when a queue is configured, otherwise processes
// it on a background goroutine. A failed enqueue falls back to the
// goroutine so the job is never stranded.
func (s *Service) trigger(jobID, requestID string) {
	if s.Queue != nil {
		err := s.Queue.Send(context.Background(), queue.Message{
			JobID:     jobID,
			RequestID: requestID,
		})
		if err == nil {
			return
		}
		telemetry.Error("job.enqueue_failed", map[string]any{
			"request_id": requestID,
			"job_id":     jobID,
			"error":      err.Error(),
		})
	}
	go s.processAsync(jobID, requestID)
}

// newProcessContext returns a background context bounded by the pipeline's
// combined per-call timeouts.
func newProcessContext(s *Service) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.transcribeTimeout()+s.evaluateTimeout()+time.Minute)
}

func (s *Service) processAsync(jobID, requestID string) {
	ctx, cancel := newProcessContext(s)
	defer cancel()
	if err := s.Process(ctx, jobID, false); err != nil {
		telemetry.Error("job.process_error", map[string]any{
			"request_id": requestID,
			"job_id":     jobID,
			"error":      err.Error(),
		})
	}
}

func (s *Service) transcribeTimeout() time.Duration {
	if s.TranscribeTimeout > 0 {
		return s.TranscribeTimeout
	}
	return defaultTranscribeTimeout
}

func (s *Service) evaluateTimeout() time.Duration {
	if s.EvaluateTimeout > 0 {
		return s.EvaluateTimeout
	}
	return defaultEvaluateTimeout
}

// Process runs the pipeline for one job. The atomic claim makes it safe to
// call concurrently from any trigger: exactly one caller wins, the rest
// no-op. With retry set, a failed job is re-claimed and its error cleared.
// Returns an error only for infrastructure problems; pipeline failures are
// recorded on the job itself.
func (s *Service) Process(ctx context.Context, id string, retry bool) error {
	claimed, err := s.Repo.ClaimForProcessing(ctx, id, StatusPending)
	if err != nil {
		return err
	}
	if !claimed && retry {
		claimed, err = s.Repo.ClaimForProcessing(ctx, id, StatusFailed)
		if err != nil {
			return err
		}
	}
	if !claimed {
		telemetry.Info("job.claim_noop", map[string]any{"job_id": id})
		return nil
	}

	job, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	r, err := s.Rubrics.Get(job.ProcedureID)
	if err != nil {
		return s.failJob(ctx, id, CodeUnknownProcedure, "unknown procedure")
	}

	tctx, tcancel := context.WithTimeout(ctx, s.transcribeTimeout())
	transcript, err := s.Transcriber.Transcribe(tctx, job.SourceRef)
	tcancel()
	if err != nil {
		code, msg := classifyTranscribeFailure(err)
		return s.failJob(ctx, id, code, msg)
	}
	if strings.TrimSpace(transcript) == "" {
		return s.failJob(ctx, id, CodeEmptyTranscript, "empty transcription")
	}
	telemetry.Info("job.transcribed", map[string]any{
		"job_id":          id,
		"transcript_size": len(transcript),
	})

	ectx, ecancel := context.WithTimeout(ctx, s.evaluateTimeout())
	raw, err := s.Evaluator.Evaluate(ectx, transcript, r, job.AdditionalContext)
	ecancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return s.failJob(ctx, id, CodeTimeout, "evaluation timed out")
		}
		return s.failJob(ctx, id, CodeEvaluationFailed, err.Error())
	}

	if err := evaluate.ValidateResult(r, raw); err != nil {
		telemetry.Error("job.invalid_evaluation", map[string]any{
			"job_id": id,
			"error":  err.Error(),
		})
		return s.failJob(ctx, id, CodeInvalidEvaluation, "invalid evaluation payload")
	}

	result, err := buildResult(r, raw, transcript, job)
	if err != nil {
		return s.failJob(ctx, id, CodeInvalidEvaluation, "invalid evaluation payload")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return s.failJob(ctx, id, CodeInvalidEvaluation, "invalid evaluation payload")
	}

	if err := s.Repo.UpdateStatus(ctx, id, StatusComplete, payload, "", ""); err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	telemetry.Info("job.complete", map[string]any{
		"job_id":       id,
		"procedure_id": job.ProcedureID,
	})
	return nil
}

func classifyTranscribeFailure(err error) (code, msg string) {
	var terr *transcribe.Error
	if errors.As(err, &terr) {
		if terr.Kind == transcribe.KindEmptyAudio {
			return CodeEmptyTranscript, "empty transcription"
		}
		return CodeTranscriptionFailed, terr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout, "transcription timed out"
	}
	return CodeTranscriptionFailed, err.Error()
}

// failJob records a pipeline failure on the job. The message is flattened to
// a single line and capped so provider stack dumps do not end up in the row.
func (s *Service) failJob(ctx context.Context, id, code, message string) error {
	msg := sanitizeError(message)
	if msg == "" {
		msg = code
	}
	telemetry.Error("job.failed", map[string]any{
		"job_id":     id,
		"error_code": code,
		"error":      msg,
	})
	if err := s.Repo.UpdateStatus(ctx, id, StatusFailed, nil, code, msg); err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return nil
}

func sanitizeError(msg string) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return msg
}

// buildResult converts raw evaluator output into the stored result shape:
// exactly the rubric's step keys, the overall fields, and the carried-through
// inputs. Extra keys in the evaluator output are dropped.
func buildResult(r rubric.Rubric, raw json.RawMessage, transcript string, job *Job) (EvaluationResult, error) {
	var flat struct {
		CaseDifficulty     int    `json:"caseDifficulty"`
		AdditionalComments string `json:"additionalComments"`
	}
	if err := json.Unmarshal(raw, &flat); err != nil {
		return EvaluationResult{}, err
	}
	var byKey map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return EvaluationResult{}, err
	}

	steps := make(map[string]StepEvaluation, len(r.Steps))
	for _, step := range r.Steps {
		rawStep, ok := byKey[step.Key]
		if !ok {
			return EvaluationResult{}, fmt.Errorf("missing step %s", step.Key)
		}
		var eval StepEvaluation
		if err := json.Unmarshal(rawStep, &eval); err != nil {
			return EvaluationResult{}, err
		}
		steps[step.Key] = eval
	}

	return EvaluationResult{
		Steps:              steps,
		CaseDifficulty:     flat.CaseDifficulty,
		AdditionalComments: flat.AdditionalComments,
		Transcription:      transcript,
		ProcedureID:        job.ProcedureID,
		SubjectName:        job.SubjectName,
		AdditionalContext:  job.AdditionalContext,
		IsFinalized:        false,
	}, nil
}

// Status returns the current job record.
func (s *Service) Status(ctx context.Context, id string) (*Job, error) {
	return s.Repo.GetByID(ctx, id)
}

// ListCompleted returns summaries of complete jobs, newest first.
func (s *Service) ListCompleted(ctx context.Context) ([]Summary, error) {
	completed, err := s.Repo.ListCompleted(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(completed))
	for _, job := range completed {
		sum := Summary{
			ID:          job.ID,
			ProcedureID: job.ProcedureID,
			Procedure:   job.ProcedureID,
			SubjectName: job.SubjectName,
			CreatedAt:   job.CreatedAt,
		}
		if r, err := s.Rubrics.Get(job.ProcedureID); err == nil {
			sum.Procedure = r.Name
		}
		if res, err := parseResult(job); err == nil {
			sum.IsFinalized = res.IsFinalized
		}
		out = append(out, sum)
	}
	return out, nil
}

// Delete removes a job. A second delete of the same id reports ErrNotFound.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.Repo.Delete(ctx, id)
}

func parseResult(job *Job) (EvaluationResult, error) {
	var res EvaluationResult
	if len(job.Result) == 0 {
		return res, fmt.Errorf("job %s has no result", job.ID)
	}
	if err := json.Unmarshal(job.Result, &res); err != nil {
		return res, fmt.Errorf("parse job result: %w", err)
	}
	return res, nil
}

// ApplyOverride layers attending override fields onto a complete job's
// result. AI-generated fields are never modified. Conflicts: job not
// complete, already finalized, or edited concurrently since the read.
func (s *Service) ApplyOverride(ctx context.Context, id string, in OverrideInput) error {
	job, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != StatusComplete {
		return fmt.Errorf("%w: job is %s, overrides require a complete job", ErrConflict, job.Status)
	}
	res, err := parseResult(job)
	if err != nil {
		return err
	}
	if res.IsFinalized {
		return fmt.Errorf("%w: job is finalized", ErrConflict)
	}

	if in.Step == nil && in.CaseDifficulty == nil && in.AdditionalComments == nil {
		return fmt.Errorf("%w: no override fields provided", ErrValidation)
	}
	if in.Step != nil {
		if in.StepKey == "" {
			return fmt.Errorf("%w: stepKey is required for step overrides", ErrValidation)
		}
		eval, ok := res.Steps[in.StepKey]
		if !ok {
			return fmt.Errorf("%w: unknown step key %q", ErrValidation, in.StepKey)
		}
		if in.Step.Score != nil {
			if *in.Step.Score < 0 || *in.Step.Score > 5 {
				return fmt.Errorf("%w: score must be between 0 and 5", ErrValidation)
			}
			score := *in.Step.Score
			eval.AttendingScore = &score
		}
		if in.Step.Time != nil {
			eval.AttendingTime = *in.Step.Time
		}
		if in.Step.Comments != nil {
			eval.AttendingComments = *in.Step.Comments
		}
		res.Steps[in.StepKey] = eval
	}
	if in.CaseDifficulty != nil {
		if *in.CaseDifficulty < 0 || *in.CaseDifficulty > 3 {
			return fmt.Errorf("%w: caseDifficulty must be between 0 and 3", ErrValidation)
		}
		diff := *in.CaseDifficulty
		res.AttendingCaseDifficulty = &diff
	}
	if in.AdditionalComments != nil {
		res.AttendingAdditionalComments = *in.AdditionalComments
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.Repo.UpdateResult(ctx, id, payload, job.UpdatedAt)
}

// Finalize freezes a complete job's result against further edits.
func (s *Service) Finalize(ctx context.Context, id string) error {
	job, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != StatusComplete {
		return fmt.Errorf("%w: job is %s, only complete jobs can be finalized", ErrConflict, job.Status)
	}
	res, err := parseResult(job)
	if err != nil {
		return err
	}
	if res.IsFinalized {
		return fmt.Errorf("%w: job is already finalized", ErrConflict)
	}
	res.IsFinalized = true
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := s.Repo.UpdateResult(ctx, id, payload, job.UpdatedAt); err != nil {
		return err
	}
	telemetry.Info("job.finalized", map[string]any{"job_id": id})
	return nil
}

// Notify renders the finalized report and emails it to the recipient.
func (s *Service) Notify(ctx context.Context, id, recipient string) error {
	if strings.TrimSpace(recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	job, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != StatusComplete {
		return fmt.Errorf("%w: job is %s", ErrPrecondition, job.Status)
	}
	res, err := parseResult(job)
	if err != nil {
		return err
	}
	if !res.IsFinalized {
		return fmt.Errorf("%w: job is not finalized", ErrPrecondition)
	}
	if s.Mailer == nil {
		return fmt.Errorf("mailer is not configured")
	}

	r, err := s.Rubrics.Get(job.ProcedureID)
	if err != nil {
		return fmt.Errorf("rubric for report: %w", err)
	}
	html, err := report.Render(r, job.Result)
	if err != nil {
		return err
	}
	if err := s.Mailer.Send(ctx, recipient, report.Subject(r.Name), html); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	telemetry.Info("job.notified", map[string]any{
		"job_id":    id,
		"recipient": recipient,
	})
	return nil
}
