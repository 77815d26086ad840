// Package config loads client settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the client configuration file.
type Config struct {
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	ListenHost     string        `yaml:"listen_host"`
	SaveDir        string        `yaml:"save_dir"`
	SentinelPrefix string        `yaml:"sentinel_prefix"`
	Log            LogConfig     `yaml:"log"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// Defaults is the configuration used when no file is given.
var Defaults = Config{
	DialTimeout: 10 * time.Second,
	SaveDir:     ".",
	Log: LogConfig{
		Level:     "warn",
		MaxSizeMB: 10,
	},
}

func (cfg Config) withDefaults() Config {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = Defaults.DialTimeout
	}
	if cfg.SaveDir == "" {
		cfg.SaveDir = Defaults.SaveDir
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = Defaults.Log.Level
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = Defaults.Log.MaxSizeMB
	}
	return cfg
}

// Load reads a YAML configuration file. Unset fields take their default value.
func Load(file string) (Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", file, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	cfg = cfg.withDefaults()
	return cfg, cfg.Validate()
}

// Validate checks the configuration for invalid values.
func (cfg *Config) Validate() error {
	if cfg.DialTimeout < 0 {
		return errors.New("dial_timeout must not be negative")
	}
	if strings.ContainsAny(cfg.SentinelPrefix, " \t\r\n") {
		return errors.New("sentinel_prefix must not contain whitespace")
	}
	if cfg.Log.MaxSizeMB < 0 {
		return errors.New("log.max_size_mb must not be negative")
	}
	return nil
}
