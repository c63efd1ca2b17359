package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/phonebill/runcfg/internal/project"
	"github.com/phonebill/runcfg/internal/runconfig"
	"gopkg.in/yaml.v3"
)

// Config is the optional runcfg configuration file.
type Config struct {
	// Root skips the marker search when set.
	Root string `yaml:"root"`
	// Services are the directories scanned for run configurations.
	Services []string `yaml:"services"`
	// Markers identify the project root.
	Markers []string `yaml:"markers"`
	// Launcher replaces the resolved Gradle command.
	Launcher string `yaml:"launcher"`
	// EnvFile is overlaid on the selected service's environment.
	EnvFile string `yaml:"env_file"`
	History struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"history"`
	Telemetry struct {
		Enabled      bool   `yaml:"enabled"`
		OTLPEndpoint string `yaml:"otlp_endpoint"`
	} `yaml:"telemetry"`
}

// ConfigDir returns $XDG_CONFIG_HOME/runcfg or ~/.config/runcfg.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "runcfg")
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	var cfg Config
	cfg.Services = append([]string(nil), runconfig.DefaultServices...)
	cfg.Markers = append([]string(nil), project.DefaultMarkers...)
	cfg.History.Enabled = true
	cfg.History.Path = filepath.Join(ConfigDir(), "history.db")
	return cfg
}

// LoadConfig reads YAML configuration from a path on top of the defaults.
// If path is empty, it resolves $XDG_CONFIG_HOME/runcfg/config.yaml or
// ~/.config/runcfg/config.yaml, and a missing file there is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = filepath.Join(ConfigDir(), "config.yaml")
	}

	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Services) == 0 {
		cfg.Services = append([]string(nil), runconfig.DefaultServices...)
	}
	if len(cfg.Markers) == 0 {
		cfg.Markers = append([]string(nil), project.DefaultMarkers...)
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(ConfigDir(), "history.db")
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Environment variables win over the file so a checkout can be pinned
// without editing it.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RUNCFG_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv("RUNCFG_LAUNCHER"); v != "" {
		cfg.Launcher = v
	}
	if v := os.Getenv("RUNCFG_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.OTLPEndpoint = v
	}
}
