package jobs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"surgeval-backend/internal/shared/server/middleware"
)

func newTestRouter(t *testing.T, svc *Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := &Handler{Service: svc}
	api := r.Group("/api/v1")
	h.Register(api)
	internal := r.Group("/api/v1/internal", middleware.InternalAuth("hook-secret"))
	h.RegisterInternal(internal)
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitEndpointAccepted(t *testing.T) {
	svc, _ := newTestService(t)
	r := newTestRouter(t, svc)

	w := doRequest(t, r, http.MethodPost, "/api/v1/jobs",
		`{"mediaUrl":"https://store/case.mp3","procedureId":"lap-appendicectomy"}`, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		JobID  string `json:"jobId"`
		Status Status `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.JobID == "" || resp.Status != StatusPending {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSubmitEndpointValidation(t *testing.T) {
	svc, _ := newTestService(t)
	r := newTestRouter(t, svc)

	w := doRequest(t, r, http.MethodPost, "/api/v1/jobs",
		`{"mediaUrl":"https://store/case.mp3","procedureId":"nope"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "validation_error") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	svc, _ := newTestService(t)
	r := newTestRouter(t, svc)
	job := submitJob(t, svc)
	waitTerminal(t, svc, job.ID)

	w := doRequest(t, r, http.MethodGet, "/api/v1/jobs/"+job.ID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		ID     string          `json:"id"`
		Status Status          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.Status != StatusComplete || len(resp.Result) == 0 {
		t.Fatalf("unexpected response: %s", w.Body.String())
	}
}

func TestStatusEndpointUnknown(t *testing.T) {
	svc, _ := newTestService(t)
	r := newTestRouter(t, svc)
	w := doRequest(t, r, http.MethodGet, "/api/v1/jobs/nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestStatusEndpointFailedJob(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Transcriber = stubTranscriber{out: " "}
	r := newTestRouter(t, svc)
	job := submitJob(t, svc)
	waitTerminal(t, svc, job.ID)

	w := doRequest(t, r, http.MethodGet, "/api/v1/jobs/"+job.ID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "empty transcription") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestOverrideEndpointConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	r := newTestRouter(t, svc)
	job := submitJob(t, svc)
	waitTerminal(t, svc, job.ID)

	body := `{"stepKey":"portPlacement","step":{"score":5}}`
	w := doRequest(t, r, http.MethodPut, "/api/v1/jobs/"+job.ID+"/override", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("override status = %d body=%s", w.Code, w.Body.String())
	}

	if w := doRequest(t, r, http.MethodPost, "/api/v1/jobs/"+job.ID+"/finalize", "", nil); w.Code != http.StatusOK {
		t.Fatalf("finalize status = %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPut, "/api/v1/jobs/"+job.ID+"/override", body, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("override after finalize status = %d", w.Code)
	}
	w = doRequest(t, r, http.MethodPost, "/api/v1/jobs/"+job.ID+"/finalize", "", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("double finalize status = %d", w.Code)
	}
}

func TestNotifyEndpointPrecondition(t *testing.T) {
	svc, _ := newTestService(t)
	r := newTestRouter(t, svc)
	job := submitJob(t, svc)
	waitTerminal(t, svc, job.ID)

	w := doRequest(t, r, http.MethodPost, "/api/v1/jobs/"+job.ID+"/notify",
		`{"recipient":"attending@hospital.example"}`, nil)
	if w.Code != http.StatusPreconditionFailed {
		t.Fatalf("notify before finalize status = %d", w.Code)
	}

	doRequest(t, r, http.MethodPost, "/api/v1/jobs/"+job.ID+"/finalize", "", nil)
	w = doRequest(t, r, http.MethodPost, "/api/v1/jobs/"+job.ID+"/notify",
		`{"recipient":"attending@hospital.example"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("notify status = %d body=%s", w.Code, w.Body.String())
	}
}

func TestDeleteEndpoint(t *testing.T) {
	svc, _ := newTestService(t)
	r := newTestRouter(t, svc)
	job := submitJob(t, svc)
	waitTerminal(t, svc, job.ID)

	if w := doRequest(t, r, http.MethodDelete, "/api/v1/jobs/"+job.ID, "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := doRequest(t, r, http.MethodDelete, "/api/v1/jobs/"+job.ID, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", w.Code)
	}
}

func TestEvaluationsEndpoint(t *testing.T) {
	svc, _ := newTestService(t)
	r := newTestRouter(t, svc)
	job := submitJob(t, svc)
	waitTerminal(t, svc, job.ID)

	w := doRequest(t, r, http.MethodGet, "/api/v1/evaluations", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Evaluations []Summary `json:"evaluations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(resp.Evaluations) != 1 || resp.Evaluations[0].Procedure != "Laparoscopic Appendicectomy" {
		t.Fatalf("unexpected listing: %s", w.Body.String())
	}
}

func TestProceduresEndpoint(t *testing.T) {
	svc, _ := newTestService(t)
	r := newTestRouter(t, svc)
	w := doRequest(t, r, http.MethodGet, "/api/v1/procedures", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Robotic Cholecystectomy") {
		t.Fatal("procedures listing missing entries")
	}
}

func TestInternalProcessEndpointAuth(t *testing.T) {
	svc, _ := newTestService(t)
	r := newTestRouter(t, svc)
	job := submitJob(t, svc)

	w := doRequest(t, r, http.MethodPost, "/api/v1/internal/jobs/"+job.ID+"/process", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPost, "/api/v1/internal/jobs/"+job.ID+"/process", "",
		map[string]string{"Authorization": "Bearer wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPost, "/api/v1/internal/jobs/"+job.ID+"/process", "",
		map[string]string{"Authorization": "Bearer hook-secret"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("authenticated status = %d body=%s", w.Code, w.Body.String())
	}
	done := waitTerminal(t, svc, job.ID)
	if done.Status != StatusComplete {
		t.Fatalf("job did not complete: %s", done.Status)
	}
}

func TestInternalProcessUnknownJob(t *testing.T) {
	svc, _ := newTestService(t)
	r := newTestRouter(t, svc)
	w := doRequest(t, r, http.MethodPost, "/api/v1/internal/jobs/missing/process", "",
		map[string]string{"Authorization": "Bearer hook-secret"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
