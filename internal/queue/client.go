// Package queue defines the processing-trigger queue: submit enqueues a job
// reference, the worker consumes it and drives the pipeline.
package queue

import "context"

// Client sends job messages to the processing queue.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
