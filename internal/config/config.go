package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/bussim/internal/sim"
)

const (
	DefaultBuses  = 2
	DefaultListen = "127.0.0.1:8787"
)

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	Buses        int           `yaml:"buses"`
	BusIDs       []string      `yaml:"bus_ids,omitempty"`
	TickInterval time.Duration `yaml:"tick_interval"`
	Speed        uint32        `yaml:"speed"`
	RefreshRate  uint64        `yaml:"refresh_rate"`
	Balance      int32         `yaml:"balance"`
	Listen       string        `yaml:"listen"`
}

func DefaultConfig() *Config {
	return &Config{
		Buses:        DefaultBuses,
		TickInterval: sim.DefaultTickInterval,
		Speed:        sim.DefaultSpeed,
		RefreshRate:  sim.DefaultRefreshRate,
		Listen:       DefaultListen,
	}
}

func Load(path string) (*Config, error) {
	return LoadOver(path, DefaultConfig())
}

// LoadOver reads path on top of base: keys present in the file override
// base, the rest keep base's values. base itself is not modified.
func LoadOver(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := *base
	cfg.BusIDs = append([]string(nil), base.BusIDs...)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks startup settings only. Speed and refresh rate are taken
// as given, the same as the runtime commands that overwrite them.
func (c *Config) Validate() error {
	if c.Buses < 0 {
		return fmt.Errorf("%w: buses must not be negative, got %d", ErrInvalidConfig, c.Buses)
	}
	if len(c.BusIDs) > c.Buses {
		return fmt.Errorf("%w: %d bus_ids listed but buses is %d", ErrInvalidConfig, len(c.BusIDs), c.Buses)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick_interval must be positive, got %s", ErrInvalidConfig, c.TickInterval)
	}
	for _, s := range c.BusIDs {
		if _, err := uuid.Parse(s); err != nil {
			return fmt.Errorf("%w: bus id %q: %v", ErrInvalidConfig, s, err)
		}
	}
	return nil
}

// Params returns the initial simulation parameters.
func (c *Config) Params() sim.Params {
	return sim.Params{
		Balance:     c.Balance,
		Speed:       c.Speed,
		RefreshRate: c.RefreshRate,
	}
}

// IDs returns Buses identifiers: the configured ones first, the rest
// freshly generated.
func (c *Config) IDs() ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, c.Buses)
	for _, s := range c.BusIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: bus id %q: %v", ErrInvalidConfig, s, err)
		}
		ids = append(ids, id)
	}
	for len(ids) < c.Buses {
		ids = append(ids, uuid.New())
	}
	return ids, nil
}
