// Package config centralises environment-variable configuration for both
// the coordinator and worker entrypoints.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds every tunable named in the deployment's configuration surface.
// It is read once at process start; nothing downstream re-reads os.Getenv.
type Config struct {
	// Coordinator tuning
	SimilarityThreshold   float64
	TargetCount           int
	MaxGeneratePerRequest int
	MaxUserConcurrent     int
	VectorSearchLimit     int
	VectorSearchCandidates int
	SearchDeadlineS       int

	// Worker tuning
	PollIntervalS   int
	JobTimeoutMin   int
	MaxRetries      int
	QueueTTLHours   int
	SweepIntervalS  int
	RenderTimeoutS  int
	WorkerID        string

	// Domain constants
	EmbeddingDim   int
	VideoTemplates []string

	// HTTP
	Port string

	// Database
	DB DBConfig

	// Outbound collaborators
	EmbeddingAPIURL string
	RendererURL     string

	ObjectStore ObjectStoreConfig

	// Wake-nudge channel (best effort)
	RedisURL string
}

// DBConfig holds Postgres connection parameters.
type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
}

// ObjectStoreConfig holds S3-compatible object store credentials and addressing.
type ObjectStoreConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	CDNBase   string
}

// Load reads every configuration value from the environment, applying the
// defaults documented in the configuration surface.
func Load() Config {
	return Config{
		SimilarityThreshold:    getEnvFloatOrDefault("SIMILARITY_THRESHOLD", 0.75),
		TargetCount:            getEnvIntOrDefault("TARGET_COUNT", 5),
		MaxGeneratePerRequest:  getEnvIntOrDefault("MAX_GENERATE_PER_REQUEST", 5),
		MaxUserConcurrent:      getEnvIntOrDefault("MAX_USER_CONCURRENT", 2),
		VectorSearchLimit:      getEnvIntOrDefault("VECTOR_SEARCH_LIMIT", 20),
		VectorSearchCandidates: getEnvIntOrDefault("VECTOR_SEARCH_CANDIDATES", 50),
		SearchDeadlineS:        getEnvIntOrDefault("SEARCH_DEADLINE_S", 5),

		PollIntervalS:  getEnvIntOrDefault("POLL_INTERVAL_S", 5),
		JobTimeoutMin:  getEnvIntOrDefault("JOB_TIMEOUT_MIN", 10),
		MaxRetries:     getEnvIntOrDefault("MAX_RETRIES", 3),
		QueueTTLHours:  getEnvIntOrDefault("QUEUE_TTL_H", 24),
		SweepIntervalS: getEnvIntOrDefault("SWEEP_INTERVAL_S", 300),
		RenderTimeoutS: getEnvIntOrDefault("RENDER_TIMEOUT_S", 300),
		WorkerID:       getEnvOrDefault("WORKER_ID", ""),

		EmbeddingDim:   getEnvIntOrDefault("EMBEDDING_DIM", 768),
		VideoTemplates: getEnvListOrDefault("VIDEO_TEMPLATES", []string{"family_guy", "spongebob", "political"}),

		Port: getEnvOrDefault("PORT", "8080"),

		DB: DBConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			User:     getEnvOrDefault("DB_USER", "jobreel"),
			Password: getEnvOrDefault("DB_PASSWORD", "jobreel_dev_password"),
			DBName:   getEnvOrDefault("DB_NAME", "jobreel"),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
			TimeZone: getEnvOrDefault("DB_TIMEZONE", "UTC"),
		},

		EmbeddingAPIURL: getEnvOrDefault("EMBEDDING_API_URL", "http://localhost:9001"),
		RendererURL:     getEnvOrDefault("RENDERER_URL", "http://localhost:9002"),

		ObjectStore: ObjectStoreConfig{
			Endpoint:  getEnvOrDefault("OBJECT_STORE_ENDPOINT", ""),
			Region:    getEnvOrDefault("OBJECT_STORE_REGION", "us-east-1"),
			Bucket:    getEnvOrDefault("OBJECT_STORE_BUCKET", "jobreel-videos"),
			AccessKey: getEnvOrDefault("OBJECT_STORE_ACCESS_KEY", ""),
			SecretKey: getEnvOrDefault("OBJECT_STORE_SECRET_KEY", ""),
			CDNBase:   getEnvOrDefault("OBJECT_STORE_CDN_BASE", ""),
		},

		RedisURL: getEnvOrDefault("REDIS_URL", ""),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
