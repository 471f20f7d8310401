package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultConfigFile = "csvarm.json"
	EnvPrefix         = "CSVARM_"
)

// Replay defaults, matching the recorded dataset layout
// [timestamp, action x6, state x6].
const (
	DefaultHz     = 30
	DefaultOffset = 7
	MaxHz         = 200
)

// Config holds the robot configuration. Every field can be overridden from the
// environment, e.g. CSVARM_REPLAY_DIR or CSVARM_LEADER_PORT.
type Config struct {
	Leader   ArmConfig    `json:"leader" envPrefix:"LEADER_"`
	Follower ArmConfig    `json:"follower" envPrefix:"FOLLOWER_"`
	Replay   ReplayConfig `json:"replay" envPrefix:"REPLAY_"`
	Log      LogConfig    `json:"log" envPrefix:"LOG_"`
}

// ArmConfig holds configuration for a single arm
type ArmConfig struct {
	Port        string      `json:"port" env:"PORT"`
	Calibration Calibration `json:"calibration,omitempty"`
}

// ReplayConfig selects where recordings live and how rows become joint vectors.
type ReplayConfig struct {
	Dir      string `json:"dir" env:"DIR"`
	Hz       int    `json:"hz" env:"HZ"`
	Fields   string `json:"fields" env:"FIELDS"` // auto, direct or offset
	Offset   int    `json:"offset" env:"OFFSET"`
	Header   bool   `json:"header" env:"HEADER"`
	Backend  string `json:"backend" env:"BACKEND"` // csv or sqlite
	Database string `json:"database,omitempty" env:"DATABASE"`
	Mirror   bool   `json:"mirror,omitempty" env:"MIRROR"`
}

// LogConfig configures the zap logger. An empty File logs to stderr.
type LogConfig struct {
	Level     string `json:"level" env:"LEVEL"`
	File      string `json:"file,omitempty" env:"FILE"`
	MaxSizeMB int    `json:"max_size_mb,omitempty" env:"MAX_SIZE_MB"`
}

// IsCalibrated returns true if the arm has calibration data
func (a *ArmConfig) IsCalibrated() bool {
	return len(a.Calibration) > 0
}

// DefaultConfig returns a config with replay and log defaults and no arms.
func DefaultConfig() *Config {
	cfg := newConfig()
	cfg.applyDefaults()
	return cfg
}

// newConfig presets the fields whose zero value is a valid setting, so that
// an explicit zero in the file or environment survives.
func newConfig() *Config {
	return &Config{Replay: ReplayConfig{Offset: DefaultOffset}}
}

func (c *Config) applyDefaults() {
	if c.Replay.Dir == "" {
		c.Replay.Dir = "recordings"
	}
	if c.Replay.Hz == 0 {
		c.Replay.Hz = DefaultHz
	}
	if c.Replay.Fields == "" {
		c.Replay.Fields = "auto"
	}
	if c.Replay.Backend == "" {
		c.Replay.Backend = "csv"
	}
	if c.Replay.Backend == "sqlite" && c.Replay.Database == "" {
		c.Replay.Database = "recordings.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the replay and log sections. Arm sections are checked by
// the commands that need them.
func (c *Config) Validate() error {
	if c.Replay.Hz <= 0 || c.Replay.Hz > MaxHz {
		return fmt.Errorf("replay hz %d: must be in (0, %d]", c.Replay.Hz, MaxHz)
	}
	if !slices.Contains([]string{"auto", "direct", "offset"}, c.Replay.Fields) {
		return fmt.Errorf("replay fields %q: must be auto, direct or offset", c.Replay.Fields)
	}
	if c.Replay.Offset < 0 {
		return fmt.Errorf("replay offset %d: must not be negative", c.Replay.Offset)
	}
	if !slices.Contains([]string{"csv", "sqlite"}, c.Replay.Backend) {
		return fmt.Errorf("replay backend %q: must be csv or sqlite", c.Replay.Backend)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		return fmt.Errorf("log level %q: must be debug, info, warn or error", c.Log.Level)
	}
	return nil
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file, then applies
// defaults and environment overrides.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := newConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigOrDefault is LoadConfigFrom, except that a missing file yields
// the defaults (still subject to environment overrides).
func LoadConfigOrDefault(path string) (*Config, error) {
	cfg, err := LoadConfigFrom(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = newConfig()
		if err := cfg.finish(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

func (c *Config) finish() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	c.applyDefaults()
	return c.Validate()
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
