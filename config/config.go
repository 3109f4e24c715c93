// Package config loads dualstreamd's configuration from a TOML file
// with environment-variable overrides, grounded on the retrieved
// video-serving stack's file-then-env precedence (internal/config).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// envPrefix namespaces every override so DUALSTREAM_* never collides
// with unrelated process environment.
const envPrefix = "DUALSTREAM_"

// StreamConfig is the per-stream (video/still) buffer policy.
type StreamConfig struct {
	BufferCount int    `toml:"buffer_count"`
	Mode        string `toml:"mode"`
}

// Config is dualstreamd's full configuration surface.
type Config struct {
	DevicePath  string `toml:"device_path"`
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
	MetricsAddr string `toml:"metrics_addr"`

	Video StreamConfig `toml:"video"`
	Still StreamConfig `toml:"still"`
}

// Default returns the configuration dualstreamd starts from before
// any file or environment override is applied.
func Default() Config {
	return Config{
		DevicePath:  "/dev/video0",
		LogLevel:    "info",
		LogFormat:   "text",
		MetricsAddr: ":9101",
		Video:       StreamConfig{BufferCount: 3, Mode: "ring"},
		Still:       StreamConfig{BufferCount: 1, Mode: "fifo"},
	}
}

// Load reads path (if it exists) over Default, then applies
// environment overrides. A missing file is not an error; a
// malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	str(&c.DevicePath, "DEVICE_PATH")
	str(&c.LogLevel, "LOG_LEVEL")
	str(&c.LogFormat, "LOG_FORMAT")
	str(&c.MetricsAddr, "METRICS_ADDR")
	str(&c.Video.Mode, "VIDEO_MODE")
	str(&c.Still.Mode, "STILL_MODE")
	integer(&c.Video.BufferCount, "VIDEO_BUFFER_COUNT")
	integer(&c.Still.BufferCount, "STILL_BUFFER_COUNT")
}

func str(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func integer(dst *int, key string) {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
