package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	Prod = "prod"
	Dev  = "dev"
	Test = "test"
)

var (
	ErrUnknownEnv        = errors.New("unknown env")
	ErrInvalidShards     = errors.New("registry shards must be a power of two")
	ErrInvalidStress     = errors.New("stress workers and iterations must be positive")
	ErrInvalidCacheSizes = errors.New("cache num_counters and max_cost must be positive")
)

type Config struct {
	Env      string   `yaml:"env"`
	Logs     Logs     `yaml:"logs"`
	Tracker  Tracker  `yaml:"tracker"`
	Stress   Stress   `yaml:"stress"`
	Registry Registry `yaml:"registry"`
	Cache    Cache    `yaml:"cache"`
	Api      Api      `yaml:"api"`
	K8S      K8S      `yaml:"k8s"`
	GC       GC       `yaml:"gc"`
	Shutdown Shutdown `yaml:"shutdown"`
}

type Logs struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error
	Pretty bool   `yaml:"pretty"` // human-readable console output
}

type Tracker struct {
	Name    string `yaml:"name"`
	MaxLive int64  `yaml:"max_live"` // 0 means unlimited
}

type Stress struct {
	Workers        int           `yaml:"workers"`
	Iterations     int           `yaml:"iterations"` // per worker
	Hold           time.Duration `yaml:"hold"`       // how long each clone is held, 0 means yield only
	Rate           float64       `yaml:"rate"`       // ops per second per worker, 0 means unlimited
	UseRegistry    bool          `yaml:"use_registry"`
	UseCache       bool          `yaml:"use_cache"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

type Registry struct {
	Shards uint64 `yaml:"shards"`
}

type Cache struct {
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"`
	BufferItems int64 `yaml:"buffer_items"`
}

type Api struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	Port    string `yaml:"port"`
}

type K8S struct {
	Probe Probe `yaml:"probe"`
}

type Probe struct {
	Timeout time.Duration `yaml:"timeout"`
}

// GC drives the forced collector; a zero interval disables that pass.
type GC struct {
	Interval          time.Duration `yaml:"interval"`
	FreeOsMemInterval time.Duration `yaml:"free_os_mem_interval"`
}

type Shutdown struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns a config usable without any file.
func Default() *Config {
	return &Config{
		Env:  Dev,
		Logs: Logs{Level: "info"},
		Tracker: Tracker{
			Name: "stress",
		},
		Stress: Stress{
			Workers:        16,
			Iterations:     20_000,
			ReportInterval: time.Second,
		},
		Registry: Registry{Shards: 64},
		Cache: Cache{
			NumCounters: 10_000,
			MaxCost:     1_000,
			BufferItems: 64,
		},
		Api:      Api{Name: "shared-handle", Port: "8020"},
		K8S:      K8S{Probe: Probe{Timeout: 5 * time.Second}},
		Shutdown: Shutdown{Timeout: 30 * time.Second},
	}
}

// LoadConfig reads a yaml file over the defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	path, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute config filepath: %w", err)
	}

	if _, err = os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	cfg := Default()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}

	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Env = env
	}

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Env {
	case Prod, Dev, Test:
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownEnv, c.Env)
	}
	if c.Registry.Shards == 0 || c.Registry.Shards&(c.Registry.Shards-1) != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidShards, c.Registry.Shards)
	}
	if c.Stress.Workers <= 0 || c.Stress.Iterations <= 0 {
		return ErrInvalidStress
	}
	if c.Cache.NumCounters <= 0 || c.Cache.MaxCost <= 0 {
		return ErrInvalidCacheSizes
	}
	if c.Cache.BufferItems <= 0 {
		c.Cache.BufferItems = 64
	}
	if c.Stress.ReportInterval <= 0 {
		c.Stress.ReportInterval = time.Second
	}
	if c.Tracker.Name == "" {
		c.Tracker.Name = "stress"
	}
	return nil
}

func (c *Config) IsProd() bool { return c.Env == Prod }
func (c *Config) IsDev() bool  { return c.Env == Dev }
func (c *Config) IsTest() bool { return c.Env == Test }
