package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Storage
	DataDir    string
	LedgerPath string
	WorkDir    string

	// Optional pathstore publishing; empty URL disables it.
	PathstoreURL    string
	PathstoreAPIKey string

	// Worker pool
	WorkerCount              int
	MaxQueueSize             int
	MaxConcurrentMaterialize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL         time.Duration
	ProcessTimeout time.Duration

	// Figures
	PDFRasterizer   string
	GuessExtensions []string

	// Bundles
	MaxIncludeDepth int
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8091"),

		APIKey: os.Getenv("FIGWEAVE_API_KEY"),

		DataDir:    envOr("DATA_DIR", "./data"),
		LedgerPath: os.Getenv("LEDGER_PATH"),
		WorkDir:    os.Getenv("WORK_DIR"),

		PathstoreURL:    os.Getenv("PATHSTORE_URL"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),

		WorkerCount:              envInt("WORKER_COUNT", 4),
		MaxQueueSize:             envInt("MAX_QUEUE_SIZE", 100),
		MaxConcurrentMaterialize: envInt("MAX_CONCURRENT_MATERIALIZE", 4),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 104857600), // 100MB

		JobTTL:         envDuration("JOB_TTL", 1*time.Hour),
		ProcessTimeout: envDuration("PROCESS_TIMEOUT", 10*time.Minute),

		PDFRasterizer:   envOr("PDF_RASTERIZER", "pdftoppm"),
		GuessExtensions: envList("GUESS_EXTENSIONS"),

		MaxIncludeDepth: envInt("MAX_INCLUDE_DEPTH", 8),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentMaterialize <= 0 {
		cfg.MaxConcurrentMaterialize = 4
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 104857600
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 10 * time.Minute
	}
	if cfg.MaxIncludeDepth <= 0 {
		cfg.MaxIncludeDepth = 8
	}
	if strings.EqualFold(cfg.PDFRasterizer, "none") {
		cfg.PDFRasterizer = ""
	}
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = filepath.Join(cfg.DataDir, "ledger.db")
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(cfg.DataDir, "work")
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("FIGWEAVE_API_KEY is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.PathstoreURL != "" && c.PathstoreAPIKey == "" {
		return fmt.Errorf("PATHSTORE_API_KEY is required when PATHSTORE_URL is set")
	}
	return nil
}

// PublishEnabled reports whether datasets are also written to pathstore.
func (c Config) PublishEnabled() bool {
	return c.PathstoreURL != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma separated value. Extensions get a leading dot.
func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		out = append(out, strings.ToLower(part))
	}
	return out
}
