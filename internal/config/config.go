// Package config loads seedcontest settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"seedcontest/internal/contest"
	"seedcontest/internal/storage"
	"seedcontest/internal/tournament"
)

const (
	OracleExec    = "exec"
	OracleFitness = "fitness"
)

type Config struct {
	Snapshots   SnapshotConfig      `json:"snapshots" yaml:"snapshots"`
	AnalysisDir string              `json:"analysis_dir" yaml:"analysis_dir"`
	Generations int                 `json:"generations" yaml:"generations"`
	NumTop      int                 `json:"num_top" yaml:"num_top"`
	NumTrials   int                 `json:"num_trials" yaml:"num_trials"`
	// NumWins and Alpha both 0 derive the win threshold from num_trials at
	// tournament.DefaultAlpha.
	NumWins     int                 `json:"num_wins" yaml:"num_wins"`
	Alpha       float64             `json:"alpha" yaml:"alpha"`
	Workers     int                 `json:"workers" yaml:"workers"`
	Environment contest.Environment `json:"environment" yaml:"environment"`
	Oracle      OracleConfig        `json:"oracle" yaml:"oracle"`
	Store       StoreConfig         `json:"store" yaml:"store"`
	Logging     LoggingConfig       `json:"logging" yaml:"logging"`
}

type SnapshotConfig struct {
	Dir string `json:"dir" yaml:"dir"`
	Ext string `json:"ext" yaml:"ext"`
}

// OracleConfig selects how contests are resolved. Retries default to 0, so
// the first oracle failure aborts the tournament.
type OracleConfig struct {
	Kind       string        `json:"kind" yaml:"kind"`
	Command    string        `json:"command,omitempty" yaml:"command,omitempty"`
	Args       []string      `json:"args,omitempty" yaml:"args,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Seed       int64         `json:"seed" yaml:"seed"`
	Retries    uint64        `json:"retries" yaml:"retries"`
	RetryDelay time.Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
}

type StoreConfig struct {
	Kind   string `json:"kind" yaml:"kind"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

func Default() *Config {
	return &Config{
		Snapshots:   SnapshotConfig{Ext: "json"},
		Generations: -1,
		NumTop:      10,
		NumTrials:   0,
		NumWins:     0,
		Workers:     1,
		Environment: contest.Environment{WidthFactor: 6, HeightFactor: 3, TimeFactor: 6},
		Oracle: OracleConfig{
			Kind:    OracleExec,
			Timeout: 5 * time.Minute,
			Seed:    1,
		},
		Store: StoreConfig{
			Kind:   storage.DefaultStoreKind(),
			DBPath: "seedcontest.db",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load returns the defaults, overlaid by the file at path when path is not
// empty, then by SEEDCONTEST_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileConfig
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Oracle.Command = os.ExpandEnv(cfg.Oracle.Command)
	cfg.Snapshots.Dir = os.ExpandEnv(cfg.Snapshots.Dir)
	cfg.AnalysisDir = os.ExpandEnv(cfg.AnalysisDir)
	return cfg, nil
}

// TrialsFor resolves num_trials for a policy: an explicit value wins,
// otherwise the policy's default.
func (c *Config) TrialsFor(policy tournament.Policy) int {
	if c.NumTrials > 0 {
		return c.NumTrials
	}
	return tournament.DefaultTrials(policy)
}

func (c *Config) Validate() error {
	if c.Generations < -1 {
		return fmt.Errorf("generations must be >= -1, got %d", c.Generations)
	}
	if c.NumTop <= 0 {
		return fmt.Errorf("num_top must be > 0, got %d", c.NumTop)
	}
	if c.NumTrials < 0 {
		return fmt.Errorf("num_trials must be >= 0, got %d", c.NumTrials)
	}
	if c.NumWins < 0 {
		return fmt.Errorf("num_wins must be >= 0, got %d", c.NumWins)
	}
	if c.Alpha < 0 || c.Alpha >= 1 {
		return fmt.Errorf("alpha must be in [0, 1), got %v", c.Alpha)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}

	switch c.Oracle.Kind {
	case OracleExec:
		if strings.TrimSpace(c.Oracle.Command) == "" {
			return fmt.Errorf("oracle.command is required for the %s oracle", OracleExec)
		}
	case OracleFitness:
	default:
		return fmt.Errorf("invalid oracle kind: %s (valid: %s, %s)", c.Oracle.Kind, OracleExec, OracleFitness)
	}
	if c.Oracle.Timeout < 0 {
		return fmt.Errorf("oracle.timeout must be non-negative, got %v", c.Oracle.Timeout)
	}
	if c.Oracle.RetryDelay < 0 {
		return fmt.Errorf("oracle.retry_delay must be non-negative, got %v", c.Oracle.RetryDelay)
	}

	switch c.Store.Kind {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("invalid store kind: %s (valid: memory, sqlite)", c.Store.Kind)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SEEDCONTEST_SNAPSHOT_DIR"); v != "" {
		cfg.Snapshots.Dir = v
	}
	if v := os.Getenv("SEEDCONTEST_SNAPSHOT_EXT"); v != "" {
		cfg.Snapshots.Ext = v
	}
	if v := os.Getenv("SEEDCONTEST_ANALYSIS_DIR"); v != "" {
		cfg.AnalysisDir = v
	}
	if err := envInt("SEEDCONTEST_WORKERS", &cfg.Workers); err != nil {
		return err
	}
	if v := os.Getenv("SEEDCONTEST_ORACLE"); v != "" {
		cfg.Oracle.Kind = v
	}
	if v := os.Getenv("SEEDCONTEST_ORACLE_COMMAND"); v != "" {
		cfg.Oracle.Command = v
	}
	if v := os.Getenv("SEEDCONTEST_ORACLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SEEDCONTEST_ORACLE_TIMEOUT: %w", err)
		}
		cfg.Oracle.Timeout = d
	}
	if v := os.Getenv("SEEDCONTEST_STORE"); v != "" {
		cfg.Store.Kind = v
	}
	if v := os.Getenv("SEEDCONTEST_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("SEEDCONTEST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
