package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
// Precedence: defaults -> config file(s) -> environment -> CLI flags.
type Config struct {
	Environment string         `toml:"environment"`
	Server      ServerConfig   `toml:"server"`
	ML          MLConfig       `toml:"ml"`
	Vector      VectorConfig   `toml:"vector"`
	Pipeline    PipelineConfig `toml:"pipeline"`
	Cache       CacheConfig    `toml:"cache"`
	Logging     LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
}

// MLConfig configures the external ML inference service client.
type MLConfig struct {
	BaseURL            string        `toml:"base_url" validate:"required,url"`
	Timeout            time.Duration `toml:"timeout"`             // embed request timeout (default 300s, large batches)
	CapabilityTimeout  time.Duration `toml:"capability_timeout"`  // capability request timeout (default 5s)
	CapabilityInterval time.Duration `toml:"capability_interval"` // probe interval (default 10s)
	BatchSize          int           `toml:"batch_size" validate:"gt=0"`
	RateLimit          int           `toml:"rate_limit"` // requests per second, 0 = default
}

// VectorConfig configures the vector store client and collection defaults.
type VectorConfig struct {
	Host            string        `toml:"host" validate:"required"`
	Port            int           `toml:"port" validate:"gt=0,lte=65535"`
	Timeout         time.Duration `toml:"timeout"` // upsert timeout (default 60s)
	VectorSize      int           `toml:"vector_size" validate:"gt=0"`
	Distance        string        `toml:"distance" validate:"oneof=Cosine Euclid Dot"`
	UpsertBatchSize int           `toml:"upsert_batch_size" validate:"gt=0"`
}

// PipelineConfig tunes the staged ingestion pipeline.
type PipelineConfig struct {
	CPUWorkers   int           `toml:"cpu_workers" validate:"gt=0"`
	GPUWorkers   int           `toml:"gpu_workers" validate:"gt=0"`
	DBWorkers    int           `toml:"db_workers" validate:"gt=0"`
	IOQueueSize  int           `toml:"io_queue_size" validate:"gt=0"`
	MaxFileSize  int64         `toml:"max_file_size"` // bytes; files above this fail with too_large
	GPUIdleFlush time.Duration `toml:"gpu_idle_flush"`
	DBIdleFlush  time.Duration `toml:"db_idle_flush"`
	UploadDir    string        `toml:"upload_dir"` // staging area for multipart uploads ("" = os temp)
}

// CacheConfig configures the on-disk dedup cache.
type CacheConfig struct {
	Dir        string `toml:"dir" validate:"required"`
	GCSchedule string `toml:"gc_schedule"` // cron spec for badger value-log GC
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// DefaultConfig returns the built-in defaults applied before any file or
// environment override.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8491,
		},
		ML: MLConfig{
			BaseURL:            "http://localhost:8001",
			Timeout:            300 * time.Second,
			CapabilityTimeout:  5 * time.Second,
			CapabilityInterval: 10 * time.Second,
			BatchSize:          128,
			RateLimit:          10,
		},
		Vector: VectorConfig{
			Host:            "localhost",
			Port:            6333,
			Timeout:         60 * time.Second,
			VectorSize:      512,
			Distance:        "Cosine",
			UpsertBatchSize: 64,
		},
		Pipeline: PipelineConfig{
			CPUWorkers:   4,
			GPUWorkers:   1,
			DBWorkers:    1,
			IOQueueSize:  1000,
			MaxFileSize:  100 * 1024 * 1024,
			GPUIdleFlush: 500 * time.Millisecond,
			DBIdleFlush:  1 * time.Second,
		},
		Cache: CacheConfig{
			Dir:        "./data/cache",
			GCSchedule: "@every 30m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration from one or more TOML files, later files
// overriding earlier ones, then applies environment overrides and validates.
func LoadFromFiles(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides applies IMAGO_* environment variables over the loaded
// configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IMAGO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("IMAGO_ML_URL"); v != "" {
		cfg.ML.BaseURL = v
	}
	if v := os.Getenv("IMAGO_ML_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ML.BatchSize = n
		}
	}
	if v := os.Getenv("IMAGO_QDRANT_HOST"); v != "" {
		cfg.Vector.Host = v
	}
	if v := os.Getenv("IMAGO_QDRANT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Vector.Port = port
		}
	}
	if v := os.Getenv("IMAGO_VECTOR_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Vector.VectorSize = n
		}
	}
	if v := os.Getenv("IMAGO_DISTANCE"); v != "" {
		cfg.Vector.Distance = v
	}
	if v := os.Getenv("IMAGO_UPSERT_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Vector.UpsertBatchSize = n
		}
	}
	if v := os.Getenv("IMAGO_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("IMAGO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// VectorBaseURL returns the vector store base URL assembled from host/port.
func (c *Config) VectorBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Vector.Host, c.Vector.Port)
}
