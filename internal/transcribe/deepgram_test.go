package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*DeepgramClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewDeepgramClient("test-key", 5*time.Second)
	if err != nil {
		t.Fatalf("NewDeepgramClient: %v", err)
	}
	c.baseURL = srv.URL
	return c, srv
}

func TestDeepgramTranscribeFormatsUtterances(t *testing.T) {
	var gotAuth, gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":{"utterances":[
			{"speaker":0,"start":1.5,"transcript":"Scalpel please."},
			{"speaker":1,"start":3.25,"transcript":"Here you go."}
		]}}`))
	})

	out, err := c.Transcribe(context.Background(), "https://example.com/case.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	want := "[Speaker 0] (1.50s): Scalpel please.\n[Speaker 1] (3.25s): Here you go."
	if out != want {
		t.Fatalf("transcript mismatch:\n got %q\nwant %q", out, want)
	}
	if gotAuth != "Token test-key" {
		t.Errorf("auth header: %q", gotAuth)
	}
	for _, param := range []string{"model=nova-2", "diarize=true", "punctuate=true", "utterances=true"} {
		if !strings.Contains(gotQuery, param) {
			t.Errorf("query missing %s: %q", param, gotQuery)
		}
	}
}

func TestDeepgramTranscribeEmptyUtterances(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"utterances":[]}}`))
	})

	_, err := c.Transcribe(context.Background(), "https://example.com/silent.mp3")
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected transcribe.Error, got %v", err)
	}
	if terr.Kind != KindEmptyAudio {
		t.Fatalf("kind = %q, want %q", terr.Kind, KindEmptyAudio)
	}
}

func TestDeepgramTranscribeProviderError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"err_code":"INVALID_URL","err_msg":"unreachable media url"}`))
	})

	_, err := c.Transcribe(context.Background(), "https://example.com/missing.mp3")
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected transcribe.Error, got %v", err)
	}
	if terr.Kind != KindProviderError {
		t.Fatalf("kind = %q, want %q", terr.Kind, KindProviderError)
	}
}

func TestDeepgramRequiresKey(t *testing.T) {
	if _, err := NewDeepgramClient("  ", 0); err == nil {
		t.Fatal("expected error for blank key")
	}
}
