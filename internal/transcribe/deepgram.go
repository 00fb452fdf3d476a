package transcribe

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
)

const deepgramAPIURL = "https://api.deepgram.com/v1/listen"

// DeepgramClient transcribes media URLs via Deepgram's prerecorded API with
// speaker diarization.
type DeepgramClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewDeepgramClient constructs a Deepgram transcriber.
func NewDeepgramClient(apiKey string, timeout time.Duration) (*DeepgramClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &DeepgramClient{
		apiKey:  apiKey,
		baseURL: deepgramAPIURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type deepgramRequest struct {
	URL string `json:"url"`
}

type deepgramUtterance struct {
	Speaker    int     `json:"speaker"`
	Start      float64 `json:"start"`
	Transcript string  `json:"transcript"`
}

type deepgramResponse struct {
	Results *struct {
		Utterances []deepgramUtterance `json:"utterances"`
	} `json:"results"`
	ErrCode string `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

// Transcribe submits the media URL and formats the diarized utterances as one
// line per utterance: "[Speaker N] (S.SSs): text".
func (c *DeepgramClient) Transcribe(ctx context.Context, mediaURL string) (string, error) {
	payload, err := json.Marshal(deepgramRequest{URL: mediaURL})
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL + "?model=nova-2&diarize=true&punctuate=true&utterances=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return "", &Error{Kind: KindProviderError, Message: "deepgram request timeout"}
		}
		return "", &Error{Kind: KindProviderError, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindProviderError, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: KindProviderError, Message: fmt.Sprintf("deepgram returned %d: %s", resp.StatusCode, truncate(string(body), 200))}
	}

	var parsed deepgramResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &Error{Kind: KindProviderError, Message: fmt.Sprintf("deepgram response parse: %v", err)}
	}
	if parsed.ErrMsg != "" {
		return "", &Error{Kind: KindProviderError, Message: parsed.ErrMsg}
	}
	if parsed.Results == nil || len(parsed.Results.Utterances) == 0 {
		return "", &Error{Kind: KindEmptyAudio, Message: "transcription returned no utterances; the audio might be silent or in an unsupported format"}
	}

	lines := make([]string, 0, len(parsed.Results.Utterances))
	for _, utt := range parsed.Results.Utterances {
		lines = append(lines, fmt.Sprintf("[Speaker %d] (%.2fs): %s", utt.Speaker, utt.Start, utt.Transcript))
	}
	return strings.Join(lines, "\n"), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var _ Transcriber = (*DeepgramClient)(nil)
