// Package config loads the balancer's YAML configuration: the simulated
// robot, the serial link, and where runs and calibration live.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/balancer/internal/command"
	"github.com/san-kum/balancer/internal/sim"
)

const (
	DefaultDataDir   = ".balancer/runs"
	DefaultCalibFile = ".balancer/calib.bin"
	DefaultLogLevel  = "info"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	LogLevel  string       `yaml:"log_level"`
	DataDir   string       `yaml:"data_dir"`
	CalibFile string       `yaml:"calib_file"`
	Serial    SerialConfig `yaml:"serial"`
	Sim       sim.Config   `yaml:"sim"`
}

type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  DefaultLogLevel,
		DataDir:   DefaultDataDir,
		CalibFile: DefaultCalibFile,
		Serial:    SerialConfig{Baud: command.DefaultBaud},
		Sim:       sim.DefaultConfig(),
	}
}

// Load reads path over the defaults, so a file only needs the keys it
// changes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrInvalid, err)
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("%w: serial baud must be positive", ErrInvalid)
	}
	if err := c.Sim.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
