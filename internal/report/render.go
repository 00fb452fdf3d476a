// Package report renders a finalized evaluation as an HTML email and
// delivers it over SMTP.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"surgeval-backend/internal/rubric"
)

// StepResult is the stored evaluation of one rubric step, AI fields plus
// optional attending overrides.
type StepResult struct {
	Score             int    `json:"score"`
	Time              string `json:"time"`
	Comments          string `json:"comments"`
	AttendingScore    *int   `json:"attendingScore,omitempty"`
	AttendingTime     string `json:"attendingTime,omitempty"`
	AttendingComments string `json:"attendingComments,omitempty"`
}

// Result is the slice of a stored job result the report needs.
type Result struct {
	Steps                       map[string]StepResult `json:"steps"`
	CaseDifficulty              int                   `json:"caseDifficulty"`
	AdditionalComments          string                `json:"additionalComments"`
	AttendingCaseDifficulty     *int                  `json:"attendingCaseDifficulty,omitempty"`
	AttendingAdditionalComments string                `json:"attendingAdditionalComments,omitempty"`
	Transcription               string                `json:"transcription"`
	SubjectName                 string                `json:"subjectName,omitempty"`
}

// stepView is one rendered rubric step. Attending overrides take precedence
// over the AI-generated fields when present.
type stepView struct {
	Name       string
	Performed  bool
	Score      int
	Time       string
	Comments   string
	Overridden bool
}

type reportView struct {
	Procedure            string
	SubjectName          string
	CaseDifficulty       int
	DifficultyDescriptor string
	AdditionalComments   string
	Steps                []stepView
	Transcription        string
}

var reportTemplate = template.Must(template.New("report").Parse(`<div style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: auto; border: 1px solid #ddd; padding: 20px;">
  <h1 style="font-size: 24px; color: #1a202c; text-align: center;">Surgical Evaluation Report</h1>
  <h2 style="font-size: 20px; color: #2d3748; text-align: center; border-bottom: 1px solid #eee; padding-bottom: 10px;">{{.Procedure}}</h2>
{{- if .SubjectName}}
  <p style="text-align: center; color: #4a5568;"><strong>Resident:</strong> {{.SubjectName}}</p>
{{- end}}

  <h3 style="font-size: 18px; color: #2d3748; border-bottom: 1px solid #eee; padding-bottom: 5px; margin-top: 30px;">Overall Assessment</h3>
  <p><strong>Case Difficulty:</strong> {{.CaseDifficulty}} / 3</p>
{{- if .DifficultyDescriptor}}
  <p style="color: #666; font-size: 14px;">{{.DifficultyDescriptor}}</p>
{{- end}}
  <p><strong>Final Remarks:</strong> {{.AdditionalComments}}</p>

  <h3 style="font-size: 18px; color: #2d3748; border-bottom: 1px solid #eee; padding-bottom: 5px; margin-top: 30px;">Procedure Step Evaluation</h3>
{{- range .Steps}}
  <div style="margin-bottom: 20px; padding: 15px; border: 1px solid #eee; border-radius: 5px;">
    <h4 style="margin-top: 0; font-size: 16px;">{{.Name}}</h4>
{{- if .Performed}}
    <p><strong>Performance Score:</strong> {{.Score}} / 5{{if .Overridden}} (attending){{end}}</p>
    <p><strong>Estimated Time:</strong> {{.Time}}</p>
    <p><strong>Comments:</strong> {{.Comments}}</p>
{{- else}}
    <p style="color: #666; font-style: italic;">{{.Comments}}</p>
{{- end}}
  </div>
{{- end}}

  <details style="margin-top: 30px;">
    <summary style="font-size: 18px; color: #2d3748; cursor: pointer;">Full Transcription</summary>
    <pre style="white-space: pre-wrap; background-color: #f7fafc; padding: 15px; border-radius: 5px; border: 1px solid #eee; font-size: 12px;">{{.Transcription}}</pre>
  </details>
</div>
`))

// Render builds the HTML report from a stored job result, preferring
// attending override values over the AI-generated ones.
func Render(r rubric.Rubric, raw json.RawMessage) (string, error) {
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode result: %w", err)
	}
	view := reportView{
		Procedure:          r.Name,
		SubjectName:        result.SubjectName,
		CaseDifficulty:     result.CaseDifficulty,
		AdditionalComments: result.AdditionalComments,
		Transcription:      result.Transcription,
	}
	if result.AttendingCaseDifficulty != nil {
		view.CaseDifficulty = *result.AttendingCaseDifficulty
	}
	if result.AttendingAdditionalComments != "" {
		view.AdditionalComments = result.AttendingAdditionalComments
	}
	if desc, ok := r.DifficultyDescriptions[view.CaseDifficulty]; ok {
		view.DifficultyDescriptor = desc
	}

	for _, step := range r.Steps {
		sv := stepView{Name: step.Name}
		eval, ok := result.Steps[step.Key]
		if !ok {
			sv.Comments = "This step was not performed or mentioned in the provided transcript."
			view.Steps = append(view.Steps, sv)
			continue
		}
		sv.Score = eval.Score
		sv.Time = eval.Time
		sv.Comments = eval.Comments
		if eval.AttendingScore != nil {
			sv.Score = *eval.AttendingScore
			sv.Overridden = true
		}
		if eval.AttendingTime != "" {
			sv.Time = eval.AttendingTime
			sv.Overridden = true
		}
		if eval.AttendingComments != "" {
			sv.Comments = eval.AttendingComments
			sv.Overridden = true
		}
		sv.Performed = sv.Score > 0
		if !sv.Performed && strings.TrimSpace(sv.Comments) == "" {
			sv.Comments = "This step was not performed or mentioned in the provided transcript."
		}
		view.Steps = append(view.Steps, sv)
	}

	var b strings.Builder
	if err := reportTemplate.Execute(&b, view); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return b.String(), nil
}

// Subject builds the email subject line for a procedure.
func Subject(procedureName string) string {
	return fmt.Sprintf("Evaluation Results for %s", procedureName)
}
