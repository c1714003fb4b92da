// ABOUTME: YAML configuration parsing, defaults, and validation
// ABOUTME: Defines listen address, engine, catalog, volume, and logging settings
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen   ListenConfig    `yaml:"listen"`
	Server   ServerConfig    `yaml:"server"`
	HTTP     HTTPConfig      `yaml:"http"`
	Database DatabaseConfig  `yaml:"database"`
	Engine   EngineConfig    `yaml:"engine"`
	Volume   VolumeConfig    `yaml:"volume"`
	Logging  LoggingConfig   `yaml:"logging"`
	Stations []StationConfig `yaml:"stations"`
}

type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (l ListenConfig) Addr() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

type ServerConfig struct {
	PollMs         int `yaml:"poll_ms"`
	WriteTimeoutMs int `yaml:"write_timeout_ms"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// DatabaseConfig selects the station catalog; an empty path keeps it in
// memory.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type EngineConfig struct {
	Kind        string `yaml:"kind"`
	Network     string `yaml:"network"`
	Address     string `yaml:"address"`
	Password    string `yaml:"password"`
	KeepAliveMs int    `yaml:"keepalive_ms"`
}

type VolumeConfig struct {
	Initial float64 `yaml:"initial"`
	Step    float64 `yaml:"step"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type StationConfig struct {
	Title   string   `yaml:"title"`
	URL     string   `yaml:"url"`
	Sources []string `yaml:"sources"`
}

const (
	EngineMPD  = "mpd"
	EngineNull = "null"
)

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Host: "0.0.0.0", Port: 9999},
		Server: ServerConfig{PollMs: 100, WriteTimeoutMs: 10000},
		HTTP:   HTTPConfig{Host: "127.0.0.1", Port: 8080},
		Engine: EngineConfig{
			Kind:        EngineMPD,
			Network:     "tcp",
			Address:     "localhost:6600",
			KeepAliveMs: 30000,
		},
		Volume:  VolumeConfig{Initial: 0.5, Step: 0.05},
		Logging: LoggingConfig{Level: "info"},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port out of range: %d", c.Listen.Port))
	}
	if c.HTTP.Enabled && (c.HTTP.Port < 0 || c.HTTP.Port > 65535) {
		errs = append(errs, fmt.Errorf("http.port out of range: %d", c.HTTP.Port))
	}
	if c.Server.PollMs <= 0 {
		errs = append(errs, errors.New("server.poll_ms must be positive"))
	}
	switch c.Engine.Kind {
	case EngineMPD:
		if c.Engine.Address == "" {
			errs = append(errs, errors.New("engine.address is required for mpd"))
		}
	case EngineNull:
	default:
		errs = append(errs, fmt.Errorf("unknown engine.kind %q", c.Engine.Kind))
	}
	if c.Volume.Initial < 0 || c.Volume.Initial > 1 {
		errs = append(errs, fmt.Errorf("volume.initial must be within [0, 1], got %v", c.Volume.Initial))
	}
	if c.Volume.Step <= 0 || c.Volume.Step > 1 {
		errs = append(errs, fmt.Errorf("volume.step must be within (0, 1], got %v", c.Volume.Step))
	}
	for i, st := range c.Stations {
		if st.Title == "" {
			errs = append(errs, fmt.Errorf("stations[%d]: title is required", i))
		}
		if len(st.Sources) == 0 {
			errs = append(errs, fmt.Errorf("stations[%d] %q: at least one source is required", i, st.Title))
		}
	}

	return errors.Join(errs...)
}
