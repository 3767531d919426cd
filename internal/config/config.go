package config

import (
	"fmt"
	"strings"

	"ptscore/domain/core"
	"ptscore/internal/errors"

	"github.com/spf13/viper"
)

// DefaultMethodology is the methodology tag written into every report.
const DefaultMethodology = "ISO/IEC 17043 & ISO 13528 (Estadística Robusta)"

// Config represents the complete application configuration
type Config struct {
	Run      RunConfig      `mapstructure:"run"`
	Robust   RobustConfig   `mapstructure:"robust"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Paths    PathConfig     `mapstructure:"paths"`
	Database DatabaseConfig `mapstructure:"database"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Server   ServerConfig   `mapstructure:"server"`
	LogLevel string         `mapstructure:"log_level"`
}

// RunConfig identifies the proficiency round being evaluated
type RunConfig struct {
	Code        string `mapstructure:"code"`
	Methodology string `mapstructure:"methodology"`
}

// RobustConfig holds Algorithm A/S settings
type RobustConfig struct {
	MaxIterations int     `mapstructure:"max_iterations"`
	Tolerance     float64 `mapstructure:"tolerance"`
}

// PipelineConfig holds evaluation pipeline settings
type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
}

// PathConfig holds file system paths
type PathConfig struct {
	Input     string `mapstructure:"input"`
	OutputDir string `mapstructure:"output_dir"`
}

// DatabaseConfig holds report store settings. An empty URL disables the store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres | sqlite
	URL    string `mapstructure:"url"`
}

// BlobConfig selects where structured documents are published.
type BlobConfig struct {
	Backend string `mapstructure:"backend"` // none | fs | s3
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Region  string `mapstructure:"region"`
	Prefix  string `mapstructure:"prefix"`
}

// ServerConfig holds report server settings
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// Load reads configuration from defaults, an optional YAML file and the environment.
// Precedence: env > config file > defaults. Environment keys use the PTSCORE_ prefix
// with dots replaced by underscores (PTSCORE_ROBUST_TOLERANCE); DATABASE_URL, PORT and
// LOG_LEVEL are also honoured unprefixed.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PTSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	_ = v.BindEnv("database.url", "PTSCORE_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("server.port", "PTSCORE_SERVER_PORT", "PORT")
	_ = v.BindEnv("log_level", "PTSCORE_LOG_LEVEL", "LOG_LEVEL")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(errors.ConfigInvalid(err.Error()), "failed to read config file %s", cfgFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid(err.Error()), "failed to decode configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Run:      RunConfig{Code: "EA-001-2025", Methodology: DefaultMethodology},
		Robust:   RobustConfig{MaxIterations: 50, Tolerance: 1e-6},
		Pipeline: PipelineConfig{Workers: 4},
		Paths:    PathConfig{Input: "data/ensayos_aptitud_consolidado.csv", OutputDir: "data"},
		Database: DatabaseConfig{Driver: "postgres"},
		Blob:     BlobConfig{Backend: "none", Dir: "data"},
		Server:   ServerConfig{Port: "8080"},
		LogLevel: "INFO",
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("run.code", d.Run.Code)
	v.SetDefault("run.methodology", d.Run.Methodology)
	v.SetDefault("robust.max_iterations", d.Robust.MaxIterations)
	v.SetDefault("robust.tolerance", d.Robust.Tolerance)
	v.SetDefault("pipeline.workers", d.Pipeline.Workers)
	v.SetDefault("paths.input", d.Paths.Input)
	v.SetDefault("paths.output_dir", d.Paths.OutputDir)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("blob.backend", d.Blob.Backend)
	v.SetDefault("blob.dir", d.Blob.Dir)
	v.SetDefault("blob.bucket", d.Blob.Bucket)
	v.SetDefault("blob.region", d.Blob.Region)
	v.SetDefault("blob.prefix", d.Blob.Prefix)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("log_level", d.LogLevel)
}

// Validate checks the settings the pipeline depends on
func (c *Config) Validate() error {
	if _, err := core.ParseRunCode(c.Run.Code); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if c.Robust.MaxIterations <= 0 {
		return errors.ConfigInvalid(fmt.Sprintf("robust.max_iterations must be positive, got %d", c.Robust.MaxIterations))
	}
	if c.Robust.Tolerance <= 0 {
		return errors.ConfigInvalid(fmt.Sprintf("robust.tolerance must be positive, got %g", c.Robust.Tolerance))
	}
	if c.Pipeline.Workers < 1 {
		return errors.ConfigInvalid(fmt.Sprintf("pipeline.workers must be at least 1, got %d", c.Pipeline.Workers))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	switch c.Blob.Backend {
	case "", "none":
	case "fs":
		if c.Blob.Dir == "" {
			return errors.ConfigInvalid("blob.dir is required for the fs backend")
		}
	case "s3":
		if c.Blob.Bucket == "" {
			return errors.ConfigInvalid("blob.bucket is required for the s3 backend")
		}
	default:
		return errors.ConfigInvalid(fmt.Sprintf("blob.backend %q is not supported", c.Blob.Backend))
	}
	return nil
}
