package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port              string
	Env               string
	DatabaseURL       string
	CORSAllowOrigin   []string
	ObjectStoreType   string
	LocalStoreDir     string
	AWSRegion         string
	S3Bucket          string
	S3Prefix          string
	UploadsBucket     string
	UploadsPrefix     string
	DeepgramAPIKey    string
	GeminiAPIKey      string
	GeminiModel       string
	TranscribeTimeout time.Duration
	EvaluateTimeout   time.Duration
	ProcessSecret     string
	QueueURL          string
	WorkerConcurrency int
	WorkerPollEvery   time.Duration
	EmailHost         string
	EmailPort         int
	EmailUser         string
	EmailPass         string
	EmailFrom         string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:              getEnv("PORT", "8080"),
		Env:               env,
		DatabaseURL:       dbURL,
		CORSAllowOrigin:   splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000")),
		ObjectStoreType:   normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:     getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:         getEnv("AWS_REGION", ""),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Prefix:          getEnv("S3_PREFIX", ""),
		UploadsBucket:     getEnv("UPLOADS_S3_BUCKET", ""),
		UploadsPrefix:     getEnv("UPLOADS_S3_PREFIX", "recordings/"),
		DeepgramAPIKey:    os.Getenv("DEEPGRAM_API_KEY"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		TranscribeTimeout: secondsEnv("TRANSCRIBE_TIMEOUT_SECONDS", 300),
		EvaluateTimeout:   secondsEnv("EVALUATE_TIMEOUT_SECONDS", 180),
		ProcessSecret:     os.Getenv("PROCESS_SECRET"),
		QueueURL:          os.Getenv("SE_SQS_QUEUE_URL"),
		WorkerConcurrency: intEnv("SE_WORKER_CONCURRENCY", 2),
		WorkerPollEvery:   secondsEnv("SE_WORKER_POLL_INTERVAL_SECONDS", 10),
		EmailHost:         os.Getenv("EMAIL_HOST"),
		EmailPort:         intEnv("EMAIL_PORT", 587),
		EmailUser:         os.Getenv("EMAIL_USER"),
		EmailPass:         os.Getenv("EMAIL_PASS"),
		EmailFrom:         os.Getenv("EMAIL_FROM"),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func intEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config env %s invalid int: %v", key, err)
		return def
	}
	return val
}

func secondsEnv(key string, def int) time.Duration {
	return time.Duration(intEnv(key, def)) * time.Second
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
