package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	FileLevel  string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
	Level         string
}

// ServerConfig controls the HTTP listener and upload handling.
type ServerConfig struct {
	Port              string
	UploadDir         string
	MaxUploadMB       int64
	MaxConcurrent     int
	StaleUploadAge    time.Duration
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
}

// RenderConfig controls rasterization and pricing.
type RenderConfig struct {
	DPI     float64
	Pricing string // "standard"|"legacy"
}

// ProgressConfig selects the progress broker. An empty RedisURL keeps
// progress in process.
type ProgressConfig struct {
	RedisURL string
	TTL      time.Duration
}

// S3Config holds credentials for s3:// document references.
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Server   ServerConfig
	Render   RenderConfig
	Progress ProgressConfig
	S3       S3Config
}

// Load reads an optional .env file and then the environment.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// variables already present in the environment win
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/inkcost.log"),
		FileLevel:  getEnv("LOG_FILE_LEVEL", ""),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_inkcost",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
		Level:         getEnv("AXIOM_LOG_LEVEL", "info"),
	}

	cfg.Server = ServerConfig{
		Port:              getEnv("PORT", "8080"),
		UploadDir:         getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadMB:       int64(parseInt(getEnv("MAX_UPLOAD_MB", "64"), 64)),
		MaxConcurrent:     parseInt(getEnv("MAX_CONCURRENT_ANALYSES", "4"), 4),
		StaleUploadAge:    parseDuration(getEnv("STALE_UPLOAD_AGE", "1h"), time.Hour),
		ShutdownTimeout:   parseDuration(getEnv("SHUTDOWN_TIMEOUT", "30s"), 30*time.Second),
		ReadHeaderTimeout: parseDuration(getEnv("READ_HEADER_TIMEOUT", "10s"), 10*time.Second),
	}
	if cfg.Server.MaxConcurrent <= 0 {
		cfg.Server.MaxConcurrent = 1
	}

	cfg.Render = RenderConfig{
		DPI:     parseFloat(getEnv("RENDER_DPI", "72"), 72),
		Pricing: strings.ToLower(getEnv("PRICING_TABLE", "standard")),
	}
	if cfg.Render.DPI <= 0 {
		cfg.Render.DPI = 72
	}

	cfg.Progress = ProgressConfig{
		RedisURL: getEnv("REDIS_URL", ""),
		TTL:      parseDuration(getEnv("PROGRESS_TTL", "10m"), 10*time.Minute),
	}

	cfg.S3 = S3Config{
		Bucket:          getEnv("AWS_S3_BUCKET", ""),
		Region:          getEnv("AWS_REGION", "us-east-1"),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
	}

	return cfg
}

// MaxUploadBytes is the request body limit for uploads.
func (s ServerConfig) MaxUploadBytes() int64 { return s.MaxUploadMB << 20 }

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
