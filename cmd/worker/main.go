package main

// Background trigger process. With SE_SQS_QUEUE_URL set it consumes the
// processing queue; without it, it polls the job store for pending jobs.
// Either way every trigger funnels through the service's idempotent claim.

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"surgeval-backend/internal/bootstrap"
	"surgeval-backend/internal/shared/config"
	"surgeval-backend/internal/shared/telemetry"
	"surgeval-backend/internal/workerproc"
)

const (
	visibilityTimeoutSeconds = 1200
	shutdownTimeout          = 30 * time.Second
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	if strings.TrimSpace(cfg.QueueURL) != "" {
		runSQSConsumer(ctx, cfg, app)
		return
	}
	runDBPoller(ctx, cfg, app)
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

func runSQSConsumer(ctx context.Context, cfg config.Config, app *bootstrap.App) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var client sqsAPI = sqs.NewFromConfig(awsCfg)

	concurrency := cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	log.Printf("worker started queue=%s concurrency=%d", cfg.QueueURL, concurrency)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(cfg.QueueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   visibilityTimeoutSeconds,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleQueueMessage(ctx, cfg, app, client, m)
			}(msg)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
}

func handleQueueMessage(ctx context.Context, cfg config.Config, app *bootstrap.App, client sqsAPI, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	err := workerproc.HandleMessage(ctx, app.JobsService, body)
	if err == nil {
		deleteMessage(ctx, cfg, client, msg)
		return
	}

	meta := workerproc.ComputeMeta(body)
	switch e := err.(type) {
	case workerproc.ErrEmptyBody, workerproc.ErrDecode:
		// Malformed payloads never become valid; drop them.
		telemetry.Error("worker.job.unparseable", map[string]any{
			"error":       err.Error(),
			"body_len":    meta.BodyLen,
			"body_sha256": meta.BodySHA,
		})
		deleteMessage(ctx, cfg, client, msg)
	case workerproc.ErrProcess:
		// Infrastructure failure; leave the message for redelivery.
		telemetry.Error("worker.job.process_failed", map[string]any{
			"job_id":     e.JobID,
			"request_id": e.RequestID,
			"error":      e.Err.Error(),
		})
	default:
		telemetry.Error("worker.job.failed", map[string]any{"error": err.Error()})
	}
}

func deleteMessage(ctx context.Context, cfg config.Config, client sqsAPI, msg sqstypes.Message) {
	_, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(cfg.QueueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		telemetry.Error("worker.job.delete_failed", map[string]any{"error": err.Error()})
	}
}

// runDBPoller scans for pending jobs on an interval and processes them. The
// claim makes it safe to run alongside the API's fire-and-forget trigger.
func runDBPoller(ctx context.Context, cfg config.Config, app *bootstrap.App) {
	interval := cfg.WorkerPollEvery
	if interval <= 0 {
		interval = 10 * time.Second
	}
	concurrency := cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	log.Printf("worker started in poll mode interval=%s concurrency=%d", interval, concurrency)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

pollLoop:
	for {
		ids, err := app.JobsRepo.ListPendingIDs(ctx, concurrency*2)
		if err != nil {
			if ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("list pending jobs: %v", err)
		}
		for _, id := range ids {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(jobID string) {
				defer wg.Done()
				defer func() { <-sem }()
				if err := app.JobsService.Process(ctx, jobID, false); err != nil {
					telemetry.Error("worker.job.process_failed", map[string]any{
						"job_id": jobID,
						"error":  err.Error(),
					})
				}
			}(id)
		}

		select {
		case <-ctx.Done():
			break pollLoop
		case <-ticker.C:
		}
	}

	wg.Wait()
}
