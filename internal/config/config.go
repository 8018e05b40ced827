package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds runtime settings for the server.
type Config struct {
	ServerAddr string

	UploadDir string
	OutputDir string

	WorkerCount   int
	QueueCapacity int
	JobTimeout    time.Duration

	MaxUploadBytes    int64
	StorageQuotaBytes int64
	Retention         time.Duration
	SweepInterval     time.Duration

	FFmpegPath string
	JobsDBPath string
}

// Load reads environment variables and returns normalized runtime config.
func Load() Config {
	return Config{
		ServerAddr:        getEnv("SERVER_ADDR", ":8080"),
		UploadDir:         getEnv("UPLOAD_DIR", "./uploads"),
		OutputDir:         getEnv("OUTPUT_DIR", "./transcoded"),
		WorkerCount:       getEnvInt("WORKER_COUNT", 4),
		QueueCapacity:     getEnvInt("QUEUE_CAPACITY", 64),
		JobTimeout:        getEnvDuration("JOB_TIMEOUT", 15*time.Minute),
		MaxUploadBytes:    int64(getEnvInt("MAX_UPLOAD_MB", 100)) << 20,
		StorageQuotaBytes: int64(getEnvInt("STORAGE_QUOTA_MB", 0)) << 20,
		Retention:         getEnvDuration("RETENTION", 24*time.Hour),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		JobsDBPath:        strings.TrimSpace(os.Getenv("JOBS_DB")),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var out int
	_, err := fmt.Sscanf(value, "%d", &out)
	if err != nil || out < 0 {
		return fallback
	}
	return out
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	out, err := time.ParseDuration(value)
	if err != nil || out <= 0 {
		return fallback
	}
	return out
}
