package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Hermes    HermesConfig    `yaml:"hermes" toml:"hermes"`
	Remote    RemoteConfig    `yaml:"remote" toml:"remote"`
	Analysis  AnalysisConfig  `yaml:"analysis" toml:"analysis"`
	Scheduler SchedulerConfig `yaml:"scheduler" toml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port" toml:"port" validate:"gt=0,lt=65536"`
	MetricsPort int    `yaml:"metrics_port" toml:"metrics_port" validate:"gt=0,lt=65536"`
	AdminToken  string `yaml:"admin_token" toml:"admin_token"`
}

// DatabaseConfig selects the run store. An empty URL keeps run history in a
// local SQLite file.
type DatabaseConfig struct {
	URL        string `yaml:"url" toml:"url"`
	SQLitePath string `yaml:"sqlite_path" toml:"sqlite_path"`
}

type StorageConfig struct {
	DataDir   string `yaml:"data_dir" toml:"data_dir"`
	OutputDir string `yaml:"output_dir" toml:"output_dir" validate:"required"`
}

// HermesConfig configures the NATS event bus. Run requests are consumed
// through Queue so that only one replica picks up each request.
type HermesConfig struct {
	URL            string `yaml:"url" toml:"url"`
	Stream         string `yaml:"stream" toml:"stream"`
	Queue          string `yaml:"queue" toml:"queue"`
	RetentionHours int    `yaml:"retention_hours" toml:"retention_hours" validate:"gte=0"`
}

type RemoteConfig struct {
	TimeoutMs         int `yaml:"timeout_ms" toml:"timeout_ms" validate:"gte=0"`
	MaxRetries        int `yaml:"max_retries" toml:"max_retries" validate:"gte=0"`
	InitialIntervalMs int `yaml:"initial_interval_ms" toml:"initial_interval_ms" validate:"gte=0"`
	MaxIntervalMs     int `yaml:"max_interval_ms" toml:"max_interval_ms" validate:"gte=0"`
}

type SchedulerConfig struct {
	Enabled         bool `yaml:"enabled" toml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes" toml:"interval_minutes" validate:"gte=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"omitempty,oneof=json text"`
}

func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutMs) * time.Millisecond
}

func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalMinutes) * time.Minute
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8700,
			MetricsPort: 8701,
		},
		Database: DatabaseConfig{
			SQLitePath: "outputs/vento.db",
		},
		Storage: StorageConfig{
			DataDir:   "data",
			OutputDir: "outputs",
		},
		Hermes: HermesConfig{
			Stream:         "VENTO_EVENTS",
			Queue:          "vento-runners",
			RetentionHours: 720,
		},
		Remote: RemoteConfig{
			TimeoutMs:         30000,
			MaxRetries:        3,
			InitialIntervalMs: 500,
			MaxIntervalMs:     5000,
		},
		Analysis: DefaultAnalysis(),
		Scheduler: SchedulerConfig{
			IntervalMinutes: 360,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the file at path over the defaults and applies VENTO_*
// environment overrides. Files ending in .toml are decoded as TOML, anything
// else as YAML.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// decoders merge into existing maps and slices; configured layers
		// and weights replace the defaults as a whole
		layers, weights := cfg.Analysis.Layers, cfg.Analysis.Weights
		cfg.Analysis.Layers, cfg.Analysis.Weights = nil, nil
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if cfg.Analysis.Layers == nil {
			cfg.Analysis.Layers = layers
		}
		if cfg.Analysis.Weights == nil {
			cfg.Analysis.Weights = weights
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

var validate = validator.New()

// Validate checks structural rules and then builds the analysis to surface
// domain errors such as an invalid weight scheme.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var errs []error
	if _, err := c.Analysis.Criteria(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Analysis.WeightScheme(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Analysis.Percentile(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Analysis.Extent(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("VENTO_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("VENTO_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("VENTO_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("VENTO_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("VENTO_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("VENTO_HERMES_URL"); v != "" {
		cfg.Hermes.URL = v
	}
	if v := os.Getenv("VENTO_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("VENTO_OUTPUT_DIR"); v != "" {
		cfg.Storage.OutputDir = v
	}
	if v := os.Getenv("VENTO_ENGINE"); v != "" {
		cfg.Analysis.Engine = v
	}
	if v := os.Getenv("VENTO_TOP_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.TopPercent = f
		}
	}
	if v := os.Getenv("VENTO_SCHEDULER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Scheduler.Enabled = b
		}
	}
	if v := os.Getenv("VENTO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VENTO_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
