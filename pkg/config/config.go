// Package config loads algebra.toml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up from the working directory
// upwards.
const FileName = "algebra.toml"

// Config is the full configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Engine EngineConfig `toml:"engine"`
	Output OutputConfig `toml:"output"`
	Cache  CacheConfig  `toml:"cache"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

type ServerConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	GRPCPort      int    `toml:"grpc_port"`
	WorksheetsDir string `toml:"worksheets_dir"`
}

type EngineConfig struct {
	Parallelism int  `toml:"parallelism"`
	FailFast    bool `toml:"fail_fast"`
	MaxSteps    int  `toml:"max_steps"`
}

// Color modes for OutputConfig.Color.
const (
	ColorAuto = "auto"
	ColorOn   = "on"
	ColorOff  = "off"
)

type OutputConfig struct {
	Color string `toml:"color"`
	Trace bool   `toml:"trace"`
}

type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"` // empty = user cache directory
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8787,
			GRPCPort: 8788,
		},
		Output: OutputConfig{Color: ColorAuto},
	}
}

// Find walks up from startDir looking for algebra.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadFile reads a configuration file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Load discovers algebra.toml from startDir (defaults when there is none)
// and applies environment overrides.
func Load(startDir string) (*Config, error) {
	cfg := Default()
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if ok {
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from PORT, GRPC_PORT, HOST, WORKSHEETS_DIR and
// ALGEBRA_CACHE_DIR. lookup is os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	envOrDefault := func(key, fallback string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return fallback
	}

	port, err := strconv.Atoi(envOrDefault("PORT", strconv.Itoa(c.Server.Port)))
	if err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	grpcPort, err := strconv.Atoi(envOrDefault("GRPC_PORT", strconv.Itoa(c.Server.GRPCPort)))
	if err != nil {
		return fmt.Errorf("invalid GRPC_PORT: %w", err)
	}
	c.Server.Port = port
	c.Server.GRPCPort = grpcPort
	c.Server.Host = envOrDefault("HOST", c.Server.Host)
	c.Server.WorksheetsDir = envOrDefault("WORKSHEETS_DIR", c.Server.WorksheetsDir)

	if dir := envOrDefault("ALGEBRA_CACHE_DIR", ""); dir != "" {
		c.Cache.Dir = dir
		c.Cache.Enabled = true
	}
	return c.Validate()
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("[server].port out of range: %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("[server].grpc_port out of range: %d", c.Server.GRPCPort)
	}
	if c.Engine.Parallelism < 0 {
		return fmt.Errorf("[engine].parallelism must not be negative")
	}
	if c.Engine.MaxSteps < 0 {
		return fmt.Errorf("[engine].max_steps must not be negative")
	}
	switch c.Output.Color {
	case ColorAuto, ColorOn, ColorOff:
	default:
		return fmt.Errorf("[output].color must be auto, on or off, got %q", c.Output.Color)
	}
	return nil
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GRPCAddr returns host:port for the gRPC server.
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}
