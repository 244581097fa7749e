package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete engine configuration
type Config struct {
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Engine    EngineConfig    `yaml:"engine" envconfig:"ENGINE"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Status    StatusConfig    `yaml:"status" envconfig:"STATUS"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	OutputDir  string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
	RosterFile string `yaml:"roster_file" envconfig:"ROSTER_FILE" validate:"required"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// EngineConfig controls the conversion worker pool
type EngineConfig struct {
	Workers int `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=64"`
	// FileOpensPerSec throttles raw file opens across the whole run;
	// raw exports usually live on shared network storage.
	FileOpensPerSec float64       `yaml:"file_opens_per_sec" envconfig:"FILE_OPENS_PER_SEC" validate:"gt=0"`
	UnitTimeout     time.Duration `yaml:"unit_timeout" envconfig:"UNIT_TIMEOUT"`
	// Modalities restricts the run to the listed modalities; empty
	// means every modality with a declared schema.
	Modalities []string `yaml:"modalities" envconfig:"MODALITIES"`
	// GapMultiples overrides the per-modality gap multiple from the
	// embedded schema tables, keyed by modality name.
	GapMultiples map[string]float64 `yaml:"gap_multiples" envconfig:"GAP_MULTIPLES"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// StatusConfig contains the read-only status HTTP surface configuration
type StatusConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
	Port    int  `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
}

// TelemetryConfig controls metrics and tracing
type TelemetryConfig struct {
	EnableMetrics bool `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	EnableTracing bool `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
}

// defaultConfig returns the built-in defaults. They are kept out of the
// envconfig tags so a config file can override them; environment
// variables still win over the file.
func defaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			DataDir:    "data/raw",
			OutputDir:  "data/standardized",
			RosterFile: "data/roster.xlsx",
			LogsDir:    "logs",
		},
		Engine: EngineConfig{
			Workers:         4,
			FileOpensPerSec: 200,
			UnitTimeout:     10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "both",
			FilePath: "logs/standardize.log",
		},
		Status: StatusConfig{
			Enabled: true,
			Port:    8090,
		},
		Telemetry: TelemetryConfig{
			EnableMetrics: true,
			EnableTracing: false,
		},
	}
}

// Load loads configuration in precedence order: built-in defaults,
// then the optional YAML config file, then STD_* environment
// variables.
func Load(configFile string) (*Config, error) {
	cfg := defaultConfig()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			if err := loadFromFile(configFile, &cfg); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	var envCfg Config
	if err := envconfig.Process("STD", &envCfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	mergeEnv(&cfg, envCfg)

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile overlays configuration from a YAML file. Keys absent
// from the file keep their current values.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// mergeEnv applies environment overrides onto cfg. Set variables win;
// unset ones leave the file or default value in place.
func mergeEnv(cfg *Config, env Config) {
	if env.Paths.DataDir != "" {
		cfg.Paths.DataDir = env.Paths.DataDir
	}
	if env.Paths.OutputDir != "" {
		cfg.Paths.OutputDir = env.Paths.OutputDir
	}
	if env.Paths.RosterFile != "" {
		cfg.Paths.RosterFile = env.Paths.RosterFile
	}
	if env.Paths.LogsDir != "" {
		cfg.Paths.LogsDir = env.Paths.LogsDir
	}
	if env.Engine.Workers != 0 {
		cfg.Engine.Workers = env.Engine.Workers
	}
	if env.Engine.FileOpensPerSec != 0 {
		cfg.Engine.FileOpensPerSec = env.Engine.FileOpensPerSec
	}
	if env.Engine.UnitTimeout != 0 {
		cfg.Engine.UnitTimeout = env.Engine.UnitTimeout
	}
	if len(env.Engine.Modalities) != 0 {
		cfg.Engine.Modalities = env.Engine.Modalities
	}
	if len(env.Engine.GapMultiples) != 0 {
		cfg.Engine.GapMultiples = env.Engine.GapMultiples
	}
	if env.Logging.Level != "" {
		cfg.Logging.Level = env.Logging.Level
	}
	if env.Logging.Output != "" {
		cfg.Logging.Output = env.Logging.Output
	}
	if env.Logging.FilePath != "" {
		cfg.Logging.FilePath = env.Logging.FilePath
	}
	if env.Status.Port != 0 {
		cfg.Status.Port = env.Status.Port
	}
	// Booleans need an explicit set-check; a zero-value merge cannot
	// distinguish "false" from "unset".
	if v, ok := lookupBool("STD_STATUS_ENABLED"); ok {
		cfg.Status.Enabled = v
	}
	if v, ok := lookupBool("STD_TELEMETRY_ENABLE_METRICS"); ok {
		cfg.Telemetry.EnableMetrics = v
	}
	if v, ok := lookupBool("STD_TELEMETRY_ENABLE_TRACING"); ok {
		cfg.Telemetry.EnableTracing = v
	}
}

func lookupBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// resolvePaths makes all configured paths absolute relative to the
// working directory.
func (c *Config) resolvePaths() error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wd, p)
	}

	c.Paths.DataDir = resolve(c.Paths.DataDir)
	c.Paths.OutputDir = resolve(c.Paths.OutputDir)
	c.Paths.RosterFile = resolve(c.Paths.RosterFile)
	c.Paths.LogsDir = resolve(c.Paths.LogsDir)
	c.Logging.FilePath = resolve(c.Logging.FilePath)
	return nil
}

// EnsureDirs creates the directories the engine writes to.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
