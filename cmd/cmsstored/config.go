package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"cmsstore/internal/core"
)

// Environment overrides, applied after the config file.
const (
	envListen          = "CMSSTORE_LISTEN"
	envCategory        = "CMSSTORE_CATEGORY"
	envLogLevel        = "CMSSTORE_LOG_LEVEL"
	envLogFormat       = "CMSSTORE_LOG_FORMAT"
	envMetrics         = "CMSSTORE_METRICS"
	envShutdownTimeout = "CMSSTORE_SHUTDOWN_TIMEOUT"
)

const readHeaderTimeout = 10 * time.Second

type metricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type daemonConfig struct {
	Listen          string        `yaml:"listen"`
	Category        string        `yaml:"category"`
	ProcessorConfig string        `yaml:"processor_config"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Metrics         metricsConfig `yaml:"metrics"`
}

func defaultConfig() daemonConfig {
	return daemonConfig{
		Listen:          ":7480",
		Category:        core.CategoryLocal,
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 15 * time.Second,
		Metrics:         metricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// loadConfig reads path (optional) over the defaults, then applies the
// environment. Unknown yaml fields are rejected.
func loadConfig(path string, getenv func(string) string) (daemonConfig, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decodeConfig(bytes.NewReader(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func decodeConfig(r io.Reader, cfg *daemonConfig) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *daemonConfig, getenv func(string) string) error {
	if v := getenv(envListen); v != "" {
		cfg.Listen = v
	}
	if v := getenv(envCategory); v != "" {
		cfg.Category = v
	}
	if v := getenv(core.EnvProcessorConfig); v != "" {
		cfg.ProcessorConfig = v
	}
	if v := getenv(envLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv(envLogFormat); v != "" {
		cfg.LogFormat = v
	}
	if v := getenv(envMetrics); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envMetrics, err)
		}
		cfg.Metrics.Enabled = on
	}
	if v := getenv(envShutdownTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envShutdownTimeout, err)
		}
		cfg.ShutdownTimeout = d
	}
	return nil
}

func (c daemonConfig) validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("listen address is required")
	}
	switch strings.ToLower(c.Category) {
	case core.CategoryLocal, core.CategoryRemote, core.CategoryWebservice:
	default:
		return fmt.Errorf("unknown processor category %q", c.Category)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path %q must start with /", c.Metrics.Path)
	}
	return nil
}

func (c daemonConfig) logger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		l.SetLevel(lvl)
	}
	if c.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}
