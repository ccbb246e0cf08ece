package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the pipeline, loaded from the environment.
type Config struct {
	Port   string `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"unifee.db"`

	// Remote registration API.
	GpdHost    string        `env:"GPD_HOST" envDefault:"http://localhost:8085"`
	GpdTimeout time.Duration `env:"GPD_TIMEOUT" envDefault:"10s"`

	// IUV generation.
	SegregationCode   int    `env:"SEGREGATION_CODE" envDefault:"47"`
	IuvMode           string `env:"IUV_GENERATION_MODE" envDefault:"random"` // random | sequential
	IuvSequenceOffset int64  `env:"IUV_SEQUENCE_OFFSET" envDefault:"0"`
	IupdPrefix        string `env:"IUPD_PREFIX" envDefault:"UNIFEE-"`

	// Validation.
	DebtorFiscalCodeLength int `env:"DEBTOR_FISCAL_CODE_LENGTH" envDefault:"11"`

	// Batch partitioning.
	PositionBatchSize int `env:"BATCH_SIZE_POSITIONS" envDefault:"25"`
	QueueBatchSize    int `env:"BATCH_SIZE_QUEUE" envDefault:"25"`

	// Retry orchestration.
	MaxRetryCount int `env:"MAX_RETRY_COUNT" envDefault:"3"`
	Workers       int `env:"ORCHESTRATOR_WORKERS" envDefault:"5"`

	// Work queue.
	QueueTTL          time.Duration `env:"QUEUE_TIME_TO_LIVE" envDefault:"1h"`
	QueueDelay        time.Duration `env:"QUEUE_DELAY" envDefault:"0s"`
	QueuePollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"2s"`

	// File export.
	ErrorDir       string        `env:"ERROR_CSV_DIR" envDefault:"errors"`
	OutputDir      string        `env:"OUTPUT_CSV_DIR" envDefault:"output"`
	ExportInterval time.Duration `env:"EXPORT_INTERVAL" envDefault:"1m"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SegregationCode < 0 || cfg.SegregationCode > 99 {
		return nil, fmt.Errorf("segregation code must be two digits, got %d", cfg.SegregationCode)
	}
	if cfg.IuvMode != "random" && cfg.IuvMode != "sequential" {
		return nil, fmt.Errorf("unknown IUV generation mode %q", cfg.IuvMode)
	}
	if cfg.PositionBatchSize <= 0 || cfg.QueueBatchSize <= 0 {
		return nil, fmt.Errorf("batch sizes must be positive")
	}
	return cfg, nil
}
