// Package config handles lanes configuration loading and normalization.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dongho-jung/lanes/internal/constants"
)

// Config represents the lanes configuration.
type Config struct {
	RunsDir            string `yaml:"runs_dir"`            // Directory holding <slug>/plan.yaml etc.
	LogPath            string `yaml:"log_path"`            // Empty disables the log file
	Debug              bool   `yaml:"debug"`               // Verbose logging to stderr and log file
	ListenAddr         string `yaml:"listen_addr"`         // Address for `lanes serve`
	GitTimeout         string `yaml:"git_timeout"`         // Per-call git timeout, e.g. "30s"
	InspectConcurrency int    `yaml:"inspect_concurrency"` // Parallel read-only git queries
}

// DefaultConfig returns the default configuration for a project directory.
func DefaultConfig(projectDir string) *Config {
	lanesDir := filepath.Join(projectDir, constants.LanesDirName)
	return &Config{
		RunsDir:            filepath.Join(lanesDir, constants.RunsDirName),
		LogPath:            filepath.Join(lanesDir, constants.LogFileName),
		ListenAddr:         constants.DefaultListenAddress,
		GitTimeout:         constants.GitCommandTimeout.String(),
		InspectConcurrency: constants.DefaultInspectConcurrency,
	}
}

// Load reads configuration with precedence:
//  1. Environment variables (LANES_*)
//  2. <projectDir>/.env.local (dotenv, does not override the real environment)
//  3. <projectDir>/.lanes/config.yaml
//  4. ~/.config/lanes/config.yaml
//  5. Defaults
func Load(projectDir string) (*Config, error) {
	cfg := DefaultConfig(projectDir)

	envPath := filepath.Join(projectDir, constants.EnvLocalFileName)
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		if err := mergeYAML(cfg, filepath.Join(home, ".config", "lanes", constants.ConfigFileName)); err != nil {
			return nil, err
		}
	}
	if err := mergeYAML(cfg, filepath.Join(projectDir, constants.LanesDirName, constants.ConfigFileName)); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// mergeYAML overlays the YAML file at path onto cfg. A missing file is not an error.
func mergeYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built from known config locations
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LANES_RUNS_DIR"); v != "" {
		cfg.RunsDir = v
	}
	if v, ok := os.LookupEnv("LANES_LOG_PATH"); ok {
		cfg.LogPath = v
	}
	if v := os.Getenv("LANES_DEBUG"); v != "" {
		cfg.Debug = v == "1" || v == "true"
	}
	if v := os.Getenv("LANES_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("LANES_GIT_TIMEOUT"); v != "" {
		cfg.GitTimeout = v
	}
	if v := os.Getenv("LANES_INSPECT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.InspectConcurrency = n
		}
	}
}

// Normalize repairs invalid values in place and returns a warning per repair.
func (c *Config) Normalize() []string {
	var warnings []string

	if c.InspectConcurrency < 1 {
		warnings = append(warnings, fmt.Sprintf("inspect_concurrency %d is invalid, using %d",
			c.InspectConcurrency, constants.DefaultInspectConcurrency))
		c.InspectConcurrency = constants.DefaultInspectConcurrency
	}
	if d, err := time.ParseDuration(c.GitTimeout); err != nil || d <= 0 {
		warnings = append(warnings, fmt.Sprintf("git_timeout %q is invalid, using %s",
			c.GitTimeout, constants.GitCommandTimeout))
		c.GitTimeout = constants.GitCommandTimeout.String()
	}
	if c.ListenAddr == "" {
		warnings = append(warnings, "listen_addr is empty, using "+constants.DefaultListenAddress)
		c.ListenAddr = constants.DefaultListenAddress
	}
	return warnings
}

// GitTimeoutDuration returns the parsed git timeout, falling back to the default.
func (c *Config) GitTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.GitTimeout)
	if err != nil || d <= 0 {
		return constants.GitCommandTimeout
	}
	return d
}

// LedgerPath returns the path of the merge-marker database.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.RunsDir, constants.LedgerFileName)
}
