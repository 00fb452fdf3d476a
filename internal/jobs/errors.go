package jobs

import "errors"

// Sentinel errors returned by the repo and service. Handlers map them to
// HTTP statuses.
var (
	ErrNotFound     = errors.New("job not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation")
	ErrPrecondition = errors.New("precondition")
)

// Error codes persisted with failed jobs.
const (
	CodeUnknownProcedure    = "unknown_procedure"
	CodeTranscriptionFailed = "transcription_failed"
	CodeEmptyTranscript     = "empty_transcript"
	CodeEvaluationFailed    = "evaluation_failed"
	CodeInvalidEvaluation   = "invalid_evaluation"
	CodeTimeout             = "timeout"
)
