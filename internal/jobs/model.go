// Package jobs owns the evaluation job lifecycle: the job record, its state
// machine, persistence, and the orchestration pipeline that takes a submitted
// recording through transcription and evaluation to a terminal state.
package jobs

import (
	"encoding/json"
	"time"
)

// Status is a job's position in the state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// legalTransition enforces the state machine: pending→processing,
// processing→complete|failed. failed→processing is allowed only through an
// explicit retry claim, never through UpdateStatus.
func legalTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusComplete || to == StatusFailed
	default:
		return false
	}
}

// Job is the record of one submitted recording moving through the pipeline.
// SourceRef, ProcedureID, SubjectName and AdditionalContext are immutable
// after creation. Result is written once by the pipeline on completion, then
// amended only through attending overrides until finalized.
type Job struct {
	ID                string          `json:"id"`
	Status            Status          `json:"status"`
	SourceRef         string          `json:"sourceRef"`
	ProcedureID       string          `json:"procedureId"`
	SubjectName       string          `json:"subjectName,omitempty"`
	AdditionalContext string          `json:"additionalContext,omitempty"`
	Result            json.RawMessage `json:"result,omitempty"`
	ErrorCode         string          `json:"errorCode,omitempty"`
	ErrorMessage      string          `json:"errorMessage,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	StartedAt         *time.Time      `json:"startedAt,omitempty"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
}

// StepEvaluation is the evaluation of one rubric step. The AI-generated
// fields are never overwritten; attending overrides sit alongside them.
type StepEvaluation struct {
	Score             int    `json:"score"`
	Time              string `json:"time"`
	Comments          string `json:"comments"`
	AttendingScore    *int   `json:"attendingScore,omitempty"`
	AttendingTime     string `json:"attendingTime,omitempty"`
	AttendingComments string `json:"attendingComments,omitempty"`
}

// EvaluationResult is the merged payload stored on a complete job: the
// per-step evaluations keyed by rubric step key, the overall assessment,
// attending overrides, and the inputs carried through for auditability.
type EvaluationResult struct {
	Steps                       map[string]StepEvaluation `json:"steps"`
	CaseDifficulty              int                       `json:"caseDifficulty"`
	AdditionalComments          string                    `json:"additionalComments"`
	AttendingCaseDifficulty     *int                      `json:"attendingCaseDifficulty,omitempty"`
	AttendingAdditionalComments string                    `json:"attendingAdditionalComments,omitempty"`
	Transcription               string                    `json:"transcription"`
	ProcedureID                 string                    `json:"procedureId"`
	SubjectName                 string                    `json:"subjectName,omitempty"`
	AdditionalContext           string                    `json:"additionalContext,omitempty"`
	IsFinalized                 bool                      `json:"isFinalized"`
}

// SubmitInput is the payload for creating a job.
type SubmitInput struct {
	MediaURL          string `json:"mediaUrl"`
	ProcedureID       string `json:"procedureId"`
	SubjectName       string `json:"subjectName"`
	AdditionalContext string `json:"additionalContext"`
}

// StepOverride carries attending override fields for one rubric step.
type StepOverride struct {
	Score    *int    `json:"score"`
	Time     *string `json:"time"`
	Comments *string `json:"comments"`
}

// OverrideInput carries attending overrides for a step and/or the overall
// assessment. All fields optional; absent fields are left untouched.
type OverrideInput struct {
	StepKey            string        `json:"stepKey"`
	Step               *StepOverride `json:"step"`
	CaseDifficulty     *int          `json:"caseDifficulty"`
	AdditionalComments *string       `json:"additionalComments"`
}

// Summary is a row in the completed-evaluations listing.
type Summary struct {
	ID          string    `json:"id"`
	ProcedureID string    `json:"procedureId"`
	Procedure   string    `json:"procedure"`
	SubjectName string    `json:"subjectName,omitempty"`
	IsFinalized bool      `json:"isFinalized"`
	CreatedAt   time.Time `json:"createdAt"`
}
