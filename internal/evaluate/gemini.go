package evaluate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"surgeval-backend/internal/rubric"
)

const geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiClient evaluates transcripts via Gemini generateContent with a JSON
// response schema derived from the rubric.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient constructs a Gemini evaluator.
func NewGeminiClient(apiKey, model string, timeout time.Duration) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-1.5-flash"
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &GeminiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: geminiAPIBase,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (c *GeminiClient) Evaluate(ctx context.Context, transcript string, r rubric.Rubric, additionalContext string) (json.RawMessage, error) {
	prompt := buildEvaluationPrompt(transcript, r, additionalContext)
	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   BuildResponseSchema(r),
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, fmt.Errorf("gemini request timeout: %w", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini request failed: %d %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("gemini response parse: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("gemini error: %s (%s)", parsed.Error.Message, parsed.Error.Status)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned an empty or invalid response")
	}

	content := strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text)
	if content == "" {
		return nil, fmt.Errorf("gemini returned an empty or invalid response")
	}
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("gemini returned invalid JSON")
	}
	return json.RawMessage(content), nil
}

func buildEvaluationPrompt(transcript string, r rubric.Rubric, additionalContext string) string {
	var b strings.Builder
	b.WriteString("You are an expert surgical education analyst. Your task is to provide a detailed, constructive evaluation of a resident's performance based on a transcript and the provided context.\n")
	fmt.Fprintf(&b, "**Procedure:** %s\n", r.Name)
	if strings.TrimSpace(additionalContext) != "" {
		fmt.Fprintf(&b, "\n**Additional Context to Consider:**\n---\n%s\n---\n", additionalContext)
	}
	fmt.Fprintf(&b, "\n**Transcript with Speaker Labels:**\n---\n%s\n---\n", transcript)
	b.WriteString(`
**Instructions:**
1. Review all the information provided.
2. Determine which speaker is the resident (learner) and which is the attending (teacher). The evaluation should focus on the resident's actions.
3. If the transcript is too short or lacks meaningful surgical dialogue, you MUST refuse to evaluate. Return a JSON object where 'additionalComments' explains why the evaluation is not possible, 'caseDifficulty' is 0, and all step scores are 0.
4. For EACH procedure step listed in the JSON schema, evaluate the resident's performance.
    * If a step WAS performed: 'score' (1-5), 'time' (estimate "X minutes Y seconds"), 'comments' (constructive feedback).
    * If a step was NOT performed/mentioned: 'score': 0, 'time': "N/A", 'comments': "This step was not performed or mentioned."
5. **Overall Assessment:**
    * 'caseDifficulty': (Number 1-3)
    * 'additionalComments': (String) Provide a concise summary of overall performance.
6. **Return ONLY the JSON object.** The entire response must be a single JSON object.
`)
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var _ Evaluator = (*GeminiClient)(nil)
