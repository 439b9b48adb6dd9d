// Package config reads the flowcheck configuration from a yaml file and
// environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jakopako/flowcheck/internal/browser"
	"github.com/jakopako/flowcheck/internal/capture"
	"github.com/jakopako/flowcheck/internal/checkpoint"
	"github.com/jakopako/flowcheck/internal/output"
	"github.com/jakopako/flowcheck/internal/regression"
)

type CaptureConfig struct {
	RootDir       string        `yaml:"root_dir" env:"FLOWCHECK_ROOT_DIR" env-default:"sections"`
	FlushInterval time.Duration `yaml:"flush_interval" env-default:"500ms"`
	SettleIdle    time.Duration `yaml:"settle_idle" env-default:"500ms"`
	SettleTimeout time.Duration `yaml:"settle_timeout" env-default:"10s"`
	// Denylist replaces the default list of analytics domains.
	Denylist []string `yaml:"denylist"`
}

type CheckpointConfig struct {
	Type checkpoint.Type `yaml:"type" env:"FLOWCHECK_CHECKPOINT" env-default:"terminal"`
	// Timeout of zero waits for the operator forever.
	Timeout time.Duration `yaml:"timeout" env:"FLOWCHECK_CHECKPOINT_TIMEOUT"`
}

type ReplayConfig struct {
	BaseURL        string           `yaml:"base_url" env:"FLOWCHECK_BASE_URL"`
	ActionDelay    time.Duration    `yaml:"action_delay"`
	FailBelowScore float64          `yaml:"fail_below_score" env:"FLOWCHECK_FAIL_BELOW_SCORE" env-default:"90"`
	Checkpoint     CheckpointConfig `yaml:"checkpoint"`
}

// Config defines the overall structure of the flowcheck configuration.
// Values will be taken from a config yml file or environment variables
// or both.
type Config struct {
	Browser browser.Config      `yaml:"browser"`
	Capture CaptureConfig       `yaml:"capture"`
	Replay  ReplayConfig        `yaml:"replay"`
	Writer  output.WriterConfig `yaml:"writer"`
}

func NewConfigFromFile(path string) (*Config, error) {
	var config Config

	if err := cleanenv.ReadConfig(path, &config); err != nil {
		return nil, err
	}
	return &config, config.Validate()
}

// NewConfigFromEnv reads the configuration from environment variables
// only, for runs without a config file.
func NewConfigFromEnv() (*Config, error) {
	var config Config

	if err := cleanenv.ReadEnv(&config); err != nil {
		return nil, err
	}
	return &config, config.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	if c.Replay.FailBelowScore < 0 || c.Replay.FailBelowScore > 100 {
		errs = append(errs, fmt.Errorf("fail_below_score must be between 0 and 100, got %v", c.Replay.FailBelowScore))
	}
	if c.Capture.SettleTimeout < c.Capture.SettleIdle {
		errs = append(errs, errors.New("settle_timeout must not be shorter than settle_idle"))
	}
	if c.Capture.RootDir == "" {
		errs = append(errs, errors.New("root_dir needs to be set"))
	}
	return errors.Join(errs...)
}

func (c *Config) CaptureOptions(section string) capture.Options {
	return capture.Options{
		Section:       section,
		BaseURL:       c.Replay.BaseURL,
		FlushInterval: c.Capture.FlushInterval,
		SettleIdle:    c.Capture.SettleIdle,
		SettleTimeout: c.Capture.SettleTimeout,
		Denylist:      c.Capture.Denylist,
	}
}

func (c *Config) RegressionOptions() regression.Options {
	return regression.Options{
		BaseURL:           c.Replay.BaseURL,
		NavigationTimeout: c.Browser.NavigationTimeout,
		ActionTimeout:     c.Browser.ActionTimeout,
		ActionDelay:       c.Replay.ActionDelay,
		SettleIdle:        c.Capture.SettleIdle,
		SettleTimeout:     c.Capture.SettleTimeout,
		FailBelowScore:    c.Replay.FailBelowScore,
		Denylist:          c.Capture.Denylist,
	}
}

// NewCheckpoint returns the configured operator checkpoint for a run
// against page.
func (c *Config) NewCheckpoint(ctx context.Context, page checkpoint.Page) (checkpoint.Checkpoint, error) {
	return checkpoint.New(ctx, c.Replay.Checkpoint.Type, page, c.Replay.Checkpoint.Timeout)
}
