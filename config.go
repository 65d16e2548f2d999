package agenda

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by Config.Backend.
const (
	BackendLocal   = "local"
	BackendDurable = "durable"
)

// Config selects and tunes a scheduler backend once at startup. It is
// usually loaded from a YAML file via LoadConfig; zero values fall back
// to the defaults below.
type Config struct {
	// Backend is "local" or "durable". Empty means local.
	Backend string `yaml:"backend"`

	Local struct {
		// QueueCapacity bounds the in-memory submission queue.
		QueueCapacity int `yaml:"queue_capacity"`
		// Concurrency is the worker-goroutine count for StartWorkers.
		Concurrency int `yaml:"concurrency"`
	} `yaml:"local"`

	Loop struct {
		// PerCallTimeout bounds each action execution attempt.
		PerCallTimeout time.Duration `yaml:"per_call_timeout"`
		// MaxTurns bounds the reasoning steps of a single turn.
		MaxTurns int `yaml:"max_turns"`
		// FallbackMessage replaces the result of an action that failed
		// both attempts.
		FallbackMessage string `yaml:"fallback_message"`
	} `yaml:"loop"`

	Cache struct {
		// MaxSize bounds the idle entries of the instance cache.
		MaxSize int `yaml:"max_size"`
	} `yaml:"cache"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	var c Config
	c.Backend = BackendLocal
	c.Local.QueueCapacity = 1024
	c.Local.Concurrency = 4
	c.Loop.PerCallTimeout = DefaultPerCallTimeout
	c.Loop.MaxTurns = DefaultMaxTurns
	c.Cache.MaxSize = 128
	return c
}

// LoadConfig reads a YAML config file and fills unset fields from
// DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Backend {
	case "", BackendLocal, BackendDurable:
		return nil
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// NewScheduler constructs the backend Config.Backend names. dial is
// required for the durable backend and ignored by the local one.
func (c Config) NewScheduler(dial Dialer) (Scheduler, error) {
	switch c.Backend {
	case "", BackendLocal:
		return NewLocalScheduler(LocalSchedulerConfig{QueueCapacity: c.Local.QueueCapacity}), nil
	case BackendDurable:
		if dial == nil {
			return nil, fmt.Errorf("backend %q needs a workflow engine dialer", c.Backend)
		}
		return NewDurableScheduler(DurableSchedulerConfig{Dial: dial}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// StepLoopConfig translates the loop section into a StepLoopConfig with
// the remaining hooks left for the caller to fill.
func (c Config) StepLoop() StepLoopConfig {
	return StepLoopConfig{
		PerCallTimeout:  c.Loop.PerCallTimeout,
		MaxTurns:        c.Loop.MaxTurns,
		FallbackMessage: c.Loop.FallbackMessage,
	}
}
