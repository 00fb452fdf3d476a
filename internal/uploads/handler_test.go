package uploads

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"

	"surgeval-backend/internal/shared/storage/object/local"
)

type stubPresigner struct {
	lastInput *s3.PutObjectInput
	err       error
}

func (s *stubPresigner) PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	s.lastInput = params
	if s.err != nil {
		return nil, s.err
	}
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3.us-east-1.amazonaws.com/signed"}, nil
}

func newUploadRouter(t *testing.T, h *Handler) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r.Group("/api/v1"))
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPresignHappyPath(t *testing.T) {
	presigner := &stubPresigner{}
	h := &Handler{Presign: presigner, Bucket: "media-bucket", Prefix: "recordings/", Region: "us-east-1"}
	r := newUploadRouter(t, h)

	w := postJSON(t, r, "/api/v1/uploads/presign",
		`{"fileName":"case 12.mp3","contentType":"audio/mpeg","sizeBytes":1048576}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp presignResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.UploadURL == "" || resp.MediaURL == "" || resp.ExpiresInSeconds != 900 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.HasPrefix(resp.MediaURL, "https://media-bucket.s3.us-east-1.amazonaws.com/recordings/") {
		t.Fatalf("mediaUrl = %q", resp.MediaURL)
	}
	if presigner.lastInput == nil || *presigner.lastInput.ContentType != "audio/mpeg" {
		t.Fatal("content type not forwarded to presign input")
	}
	// Whitespace in the file name must be sanitized out of the key.
	if strings.Contains(*presigner.lastInput.Key, " ") {
		t.Fatalf("key contains whitespace: %q", *presigner.lastInput.Key)
	}
}

func TestPresignRejectsBadInput(t *testing.T) {
	h := &Handler{Presign: &stubPresigner{}, Bucket: "b", Region: "us-east-1"}
	r := newUploadRouter(t, h)

	cases := []struct {
		name string
		body string
	}{
		{"missing file name", `{"contentType":"audio/mpeg","sizeBytes":100}`},
		{"disallowed content type", `{"fileName":"a.pdf","contentType":"application/pdf","sizeBytes":100}`},
		{"zero size", `{"fileName":"a.mp3","contentType":"audio/mpeg","sizeBytes":0}`},
		{"oversized", `{"fileName":"a.mp3","contentType":"audio/mpeg","sizeBytes":3221225472}`},
		{"path traversal", `{"fileName":"../../etc/passwd.mp3","contentType":"audio/mpeg","sizeBytes":100}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(t, r, "/api/v1/uploads/presign", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
			}
		})
	}
}

func TestPresignNotConfigured(t *testing.T) {
	h := &Handler{}
	r := newUploadRouter(t, h)
	w := postJSON(t, r, "/api/v1/uploads/presign",
		`{"fileName":"a.mp3","contentType":"audio/mpeg","sizeBytes":100}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestDirectUpload(t *testing.T) {
	store := local.New(t.TempDir())
	h := &Handler{Store: store}
	r := newUploadRouter(t, h)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "case.mp3")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write([]byte("fake audio bytes"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		MediaURL  string `json:"mediaUrl"`
		SizeBytes int64  `json:"sizeBytes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.MediaURL == "" || resp.SizeBytes != int64(len("fake audio bytes")) {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDirectUploadMissingFile(t *testing.T) {
	store := local.New(t.TempDir())
	h := &Handler{Store: store}
	r := newUploadRouter(t, h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}
