// Package config loads layoutlab settings from YAML or TOML files with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-layout/pkg/force"
	"github.com/dd0wney/cluso-layout/pkg/kernel"
	"github.com/dd0wney/cluso-layout/pkg/layout"
	"github.com/dd0wney/cluso-layout/pkg/worker"
)

// Environment overrides, applied after the file
const (
	EnvLogLevel          = "LAYOUT_LOG_LEVEL"
	EnvPoolSize          = "LAYOUT_POOL_SIZE"
	EnvKernelDevice      = "LAYOUT_KERNEL_DEVICE"
	EnvConcurrentBackend = "LAYOUT_CONCURRENT_BACKEND"
)

var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config is the full settings tree
type Config struct {
	LogLevel    string `yaml:"log_level" toml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr" validate:"omitempty,hostname_port"`

	Layout LayoutConfig  `yaml:"layout" toml:"layout"`
	Force  force.Config  `yaml:"force" toml:"force"`
	Pool   worker.Config `yaml:"pool" toml:"pool"`
	Kernel KernelConfig  `yaml:"kernel" toml:"kernel"`
}

// LayoutConfig selects the layout and its backend
type LayoutConfig struct {
	Type              string `yaml:"type" toml:"type" validate:"required,oneof=forceDirected2d forceDirected3d circular2d hierarchicalTd"`
	Threshold         int    `yaml:"threshold" toml:"threshold" validate:"gte=0"`
	ConcurrentBackend string `yaml:"concurrent_backend" toml:"concurrent_backend" validate:"required,oneof=worker kernel"`
	PublishEvery      int    `yaml:"publish_every" toml:"publish_every" validate:"gte=0"`
}

// KernelConfig selects the compute device
type KernelConfig struct {
	Device string `yaml:"device" toml:"device" validate:"required"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		LogLevel: "info",
		Layout: LayoutConfig{
			Type:              layout.TypeForceDirected2D,
			Threshold:         layout.DefaultThreshold,
			ConcurrentBackend: layout.WorkerPool.String(),
			PublishEvery:      1,
		},
		Force:  force.DefaultConfig(),
		Pool:   worker.DefaultConfig(),
		Kernel: KernelConfig{Device: kernel.DeviceAuto},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads defaults and environment only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(getenv(EnvPoolSize)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPoolSize, err)
		}
		cfg.Pool.Size = n
	}
	if v := strings.TrimSpace(getenv(EnvKernelDevice)); v != "" {
		cfg.Kernel.Device = v
	}
	if v := strings.TrimSpace(getenv(EnvConcurrentBackend)); v != "" {
		b, err := layout.ParseBackend(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvConcurrentBackend, err)
		}
		cfg.Layout.ConcurrentBackend = b.String()
	}
	return nil
}

// ManagerConfig converts the layout section for layout.NewManager
func (c Config) ManagerConfig() (layout.Config, error) {
	backend, err := layout.ParseBackend(c.Layout.ConcurrentBackend)
	if err != nil {
		return layout.Config{}, err
	}
	mc := layout.DefaultConfig()
	mc.Threshold = c.Layout.Threshold
	mc.Concurrent = backend
	mc.PublishEvery = c.Layout.PublishEvery
	return mc, nil
}

// ForceConfig returns the simulation parameters for the configured layout
// type
func (c Config) ForceConfig() force.Config {
	fc := c.Force
	fc.Is3D = c.Layout.Type == layout.TypeForceDirected3D
	return fc
}
