package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"brokerCtl/internal/broker"
	"brokerCtl/internal/model"
)

type Config struct {
	DataDir               string            `json:"data_dir"`
	MaxConcurrent         int               `json:"max_concurrent"`
	MaxQueueDepth         int               `json:"max_queue_depth"`
	RetryCount            int               `json:"retry_count"`
	RetryDelaySeconds     float64           `json:"retry_delay_seconds"`
	RetryJitterSeconds    float64           `json:"retry_jitter_seconds"`
	DefaultTimeoutSeconds float64           `json:"default_timeout_seconds"`
	DefaultWorkDir        string            `json:"default_workdir,omitempty"`
	DefaultEnv            map[string]string `json:"default_env,omitempty"`
	LogPath               string            `json:"log_path,omitempty"`
	LogRotationBytes      int64             `json:"log_rotation_bytes"`
}

const configFileName = "config.json"

// UnboundedQueue disables the pending queue limit.
const UnboundedQueue = -1

// NewConfig creates a config with default values
func NewConfig() *Config {
	return &Config{
		DataDir:          "./db",
		MaxConcurrent:    2,
		MaxQueueDepth:    UnboundedQueue,
		LogPath:          filepath.Join("./db", "broker.log"),
		LogRotationBytes: 10 << 20,
	}
}

// Path returns the config file location, honoring BROKERCTL_CONFIG.
func Path() (string, error) {
	if p := os.Getenv("BROKERCTL_CONFIG"); p != "" {
		return p, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(configDir, "brokerCtl", configFileName), nil
}

func LoadConfig() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads path, writing the defaults there on first use.
func LoadFrom(path string) (*Config, error) {
	cfg := NewConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, SaveTo(path, cfg)
		}
		return nil, err
	}
	if err := json.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

func SaveTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Keys lists the settings accepted by Set.
var Keys = []string{
	"data-dir", "max-concurrent", "max-queue-depth", "retry-count",
	"retry-delay", "retry-jitter", "default-timeout", "default-workdir",
	"default-env", "log-path", "log-rotation-bytes",
}

// Set parses value into the setting named key. default-env takes KEY=VALUE
// and removes KEY when VALUE is empty.
func (c *Config) Set(key, value string) error {
	switch key {
	case "data-dir":
		c.DataDir = value
	case "default-workdir":
		c.DefaultWorkDir = value
	case "log-path":
		c.LogPath = value
	case "max-concurrent":
		i, err := strconv.Atoi(value)
		if err != nil || i < 1 {
			return fmt.Errorf("invalid value for max-concurrent: %s", value)
		}
		c.MaxConcurrent = i
	case "max-queue-depth":
		i, err := strconv.Atoi(value)
		if err != nil || i < UnboundedQueue {
			return fmt.Errorf("invalid value for max-queue-depth: %s", value)
		}
		c.MaxQueueDepth = i
	case "retry-count":
		i, err := strconv.Atoi(value)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid value for retry-count: %s", value)
		}
		c.RetryCount = i
	case "retry-delay", "retry-jitter", "default-timeout":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid value for %s: %s", key, value)
		}
		switch key {
		case "retry-delay":
			c.RetryDelaySeconds = f
		case "retry-jitter":
			c.RetryJitterSeconds = f
		default:
			c.DefaultTimeoutSeconds = f
		}
	case "log-rotation-bytes":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid value for log-rotation-bytes: %s", value)
		}
		c.LogRotationBytes = n
	case "default-env":
		k, v, ok := strings.Cut(value, "=")
		if !ok || k == "" {
			return fmt.Errorf("default-env expects KEY=VALUE, got %s", value)
		}
		if v == "" {
			delete(c.DefaultEnv, k)
			return nil
		}
		if c.DefaultEnv == nil {
			c.DefaultEnv = map[string]string{}
		}
		c.DefaultEnv[k] = v
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// BrokerConfig converts the file settings into a broker configuration. The
// logger and hooks are wired by the caller.
func (c *Config) BrokerConfig() broker.Config {
	bc := broker.Config{
		DefaultWorkDir: c.DefaultWorkDir,
		DefaultEnv:     c.DefaultEnv,
		DefaultTimeout: model.Seconds(c.DefaultTimeoutSeconds),
		MaxConcurrent:  c.MaxConcurrent,
		RetryCount:     c.RetryCount,
		RetryDelay:     model.Seconds(c.RetryDelaySeconds),
		RetryJitter:    model.Seconds(c.RetryJitterSeconds),
	}
	if c.MaxQueueDepth > UnboundedQueue {
		bc.MaxQueueDepth = broker.QueueDepth(c.MaxQueueDepth)
	}
	return bc
}
