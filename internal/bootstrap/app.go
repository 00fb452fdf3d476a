// Package bootstrap wires the application's dependencies from config.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"surgeval-backend/internal/evaluate"
	"surgeval-backend/internal/jobs"
	"surgeval-backend/internal/queue"
	"surgeval-backend/internal/report"
	"surgeval-backend/internal/rubric"
	"surgeval-backend/internal/shared/config"
	"surgeval-backend/internal/shared/storage/db"
	"surgeval-backend/internal/shared/storage/object"
	localstore "surgeval-backend/internal/shared/storage/object/local"
	s3store "surgeval-backend/internal/shared/storage/object/s3"
	"surgeval-backend/internal/transcribe"
	"surgeval-backend/internal/uploads"
)

// App holds the wired dependencies shared by the API server and the worker.
type App struct {
	Config config.Config
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	Rubrics     rubric.Catalog
	JobsRepo    jobs.Repo
	JobsService *jobs.Service

	JobsHandler    *jobs.Handler
	UploadsHandler *uploads.Handler
}

// Build prepares shared dependencies without starting servers. Missing
// optional providers degrade to dev-friendly fallbacks: memory repo without
// DATABASE_URL, placeholder transcriber/evaluator without API keys.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	sqlDB := buildDB(ctx, cfg)

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var repo jobs.Repo
	if sqlDB != nil {
		repo = jobs.NewPGRepo(sqlDB)
	} else {
		repo = jobs.NewMemoryRepo()
	}

	catalog := rubric.NewStaticCatalog()

	var transcriber transcribe.Transcriber = transcribe.Placeholder{}
	if cfg.DeepgramAPIKey != "" {
		dg, err := transcribe.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.TranscribeTimeout)
		if err != nil {
			return nil, fmt.Errorf("transcriber: %w", err)
		}
		transcriber = dg
	} else if cfg.Env == "production" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is required in production")
	} else {
		log.Printf("DEEPGRAM_API_KEY not set, using placeholder transcriber")
	}

	var evaluator evaluate.Evaluator = evaluate.Placeholder{}
	if cfg.GeminiAPIKey != "" {
		gm, err := evaluate.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.EvaluateTimeout)
		if err != nil {
			return nil, fmt.Errorf("evaluator: %w", err)
		}
		evaluator = gm
	} else if cfg.Env == "production" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required in production")
	} else {
		log.Printf("GEMINI_API_KEY not set, using placeholder evaluator")
	}

	var mailer report.Mailer
	if cfg.EmailHost != "" {
		m, err := report.NewSMTPMailer(report.SMTPConfig{
			Host:     cfg.EmailHost,
			Port:     cfg.EmailPort,
			Username: cfg.EmailUser,
			Password: cfg.EmailPass,
			From:     cfg.EmailFrom,
		})
		if err != nil {
			return nil, fmt.Errorf("mailer: %w", err)
		}
		mailer = m
	} else {
		log.Printf("EMAIL_HOST not set, notify endpoint disabled")
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svc := &jobs.Service{
		Repo:              repo,
		Rubrics:           catalog,
		Transcriber:       transcriber,
		Evaluator:         evaluator,
		Mailer:            mailer,
		Queue:             queueClient,
		TranscribeTimeout: cfg.TranscribeTimeout,
		EvaluateTimeout:   cfg.EvaluateTimeout,
	}

	uploadsHandler, err := buildUploads(ctx, cfg, store)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:         cfg,
		DB:             sqlDB,
		Store:          store,
		Queue:          queueClient,
		Rubrics:        catalog,
		JobsRepo:       repo,
		JobsService:    svc,
		JobsHandler:    &jobs.Handler{Service: svc},
		UploadsHandler: uploadsHandler,
	}, nil
}

func buildDB(ctx context.Context, cfg config.Config) *sql.DB {
	if cfg.DatabaseURL == "" {
		log.Printf("DATABASE_URL not set, using in-memory job store")
		return nil
	}
	conn, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		log.Printf("failed to connect database, falling back to memory: %v", err)
		return nil
	}
	if err := db.RunMigrations(ctx, conn); err != nil {
		log.Printf("failed to run migrations, falling back to memory: %v", err)
		_ = conn.Close()
		return nil
	}
	return conn
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	if cfg.ObjectStoreType == "s3" {
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for the s3 object store")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	}
	return localstore.New(cfg.LocalStoreDir), nil
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("aws config for sqs: %w", err)
	}
	return queue.NewSQSClient(sqs.NewFromConfig(awsCfg), cfg.QueueURL)
}

func buildUploads(ctx context.Context, cfg config.Config, store object.ObjectStore) (*uploads.Handler, error) {
	h := &uploads.Handler{Store: store}
	if cfg.UploadsBucket == "" {
		return h, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("aws config for uploads: %w", err)
	}
	h.Presign = s3.NewPresignClient(s3.NewFromConfig(awsCfg))
	h.Bucket = cfg.UploadsBucket
	h.Prefix = cfg.UploadsPrefix
	h.Region = cfg.AWSRegion
	return h, nil
}
