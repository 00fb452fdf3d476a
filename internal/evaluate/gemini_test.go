package evaluate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newGeminiTestClient(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewGeminiClient("test-key", "gemini-1.5-flash", 5*time.Second)
	if err != nil {
		t.Fatalf("NewGeminiClient: %v", err)
	}
	c.baseURL = srv.URL
	return c
}

func TestGeminiEvaluateReturnsCandidateJSON(t *testing.T) {
	var gotBody []byte
	c := newGeminiTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"portPlacement\":{\"score\":4,\"time\":\"5 minutes\",\"comments\":\"Good.\"},\"appendixDissection\":{\"score\":3,\"time\":\"12 minutes\",\"comments\":\"OK.\"},\"caseDifficulty\":1,\"additionalComments\":\"Fine.\"}"}]}}]}`))
	})

	raw, err := c.Evaluate(context.Background(), "[Speaker 0] (0.00s): Begin.", testRubric(), "first solo case")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("result not valid JSON: %v", err)
	}
	if _, ok := parsed["portPlacement"]; !ok {
		t.Fatal("result missing portPlacement")
	}

	var req geminiRequest
	if err := json.Unmarshal(gotBody, &req); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if req.GenerationConfig.ResponseMimeType != "application/json" {
		t.Errorf("responseMimeType = %q", req.GenerationConfig.ResponseMimeType)
	}
	if req.GenerationConfig.ResponseSchema == nil {
		t.Error("request missing responseSchema")
	}
	prompt := req.Contents[0].Parts[0].Text
	if !strings.Contains(prompt, "Laparoscopic Appendicectomy") {
		t.Error("prompt missing procedure name")
	}
	if !strings.Contains(prompt, "first solo case") {
		t.Error("prompt missing additional context")
	}
	if !strings.Contains(prompt, "Begin.") {
		t.Error("prompt missing transcript")
	}
}

func TestGeminiEvaluateAPIError(t *testing.T) {
	c := newGeminiTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	})

	_, err := c.Evaluate(context.Background(), "t", testRubric(), "")
	if err == nil || !strings.Contains(err.Error(), "gemini request failed: 429") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGeminiEvaluateEmptyCandidates(t *testing.T) {
	c := newGeminiTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := c.Evaluate(context.Background(), "t", testRubric(), "")
	if err == nil || !strings.Contains(err.Error(), "empty or invalid response") {
		t.Fatalf("unexpected error: %v", err)
	}
}
