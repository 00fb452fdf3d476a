package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MessageVersion is bumped when the message shape changes.
const MessageVersion = 1

// Message is the queue payload referencing a job to process. The job record
// itself stays in the store; the message only carries the pointer.
type Message struct {
	Version    int       `json:"version"`
	JobID      string    `json:"jobId"`
	RequestID  string    `json:"requestId,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Encode serializes the message for the queue body.
func (m Message) Encode() (string, error) {
	if strings.TrimSpace(m.JobID) == "" {
		return "", fmt.Errorf("queue message missing jobId")
	}
	if m.Version == 0 {
		m.Version = MessageVersion
	}
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode queue message: %w", err)
	}
	return string(raw), nil
}

// Decode parses a queue body into a Message.
func Decode(body string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return Message{}, fmt.Errorf("decode queue message: %w", err)
	}
	if strings.TrimSpace(m.JobID) == "" {
		return Message{}, fmt.Errorf("queue message missing jobId")
	}
	return m, nil
}
