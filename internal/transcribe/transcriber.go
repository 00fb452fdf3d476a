// Package transcribe turns recorded procedure media into a speaker-labelled
// transcript.
package transcribe

import (
	"context"
	"fmt"
)

// Error kinds reported by transcription providers.
const (
	KindProviderError = "transcription_failed"
	KindEmptyAudio    = "empty_transcript"
)

// Error is a transcription failure with a stable kind for job error codes.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Transcriber produces a transcript for media addressable by URL.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaURL string) (string, error)
}

// Placeholder returns a canned transcript. Used in dev mode when no
// transcription provider is configured.
type Placeholder struct{}

func (Placeholder) Transcribe(ctx context.Context, mediaURL string) (string, error) {
	return fmt.Sprintf("[Speaker 0] (0.00s): Placeholder transcript for %s. Configure DEEPGRAM_API_KEY for real transcription.", mediaURL), nil
}
