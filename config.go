package tiercache

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kestrelcache/tiercache/breaker"
	"github.com/kestrelcache/tiercache/localtier"
	"github.com/kestrelcache/tiercache/sharedtier"
)

// Config carries the engine's configuration options. It has no global
// on/off switch: each tier is enabled or disabled on its own. It is a
// plain struct rather than a parsed DSL string, loadable from YAML for
// callers that want file-based configuration; wiring an Engine from a
// Config is left to the caller, per the config-loader Non-goal.
type Config struct {
	Local  localtier.Config `yaml:"local"`
	Shared SharedConfig     `yaml:"shared"`
	Breaker breaker.Config  `yaml:"breaker"`

	NegativeCacheTTL time.Duration `yaml:"negative_cache_ttl"`
	DefaultTTL       time.Duration `yaml:"default_ttl"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// SharedConfig configures the SharedTier and whether it is enabled at all —
// spec.md allows either tier to be disabled independently.
type SharedConfig struct {
	Enabled bool             `yaml:"enabled"`
	Redis   sharedtier.Config `yaml:"redis"`
}

// SchedulerConfig configures the AsyncScheduler (§4.8). The pool runs a
// fixed CorePoolSize workers; MaxPoolSize is not consulted.
type SchedulerConfig struct {
	CorePoolSize  int `yaml:"core_pool_size"`
	MaxPoolSize   int `yaml:"max_pool_size"`
	QueueCapacity int `yaml:"queue_capacity"`
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		Local: localtier.Config{
			MaximumSize:      10000,
			ExpireAfterWrite: time.Hour,
			RecordStats:      true,
		},
		Shared: SharedConfig{Enabled: false},
		Breaker: breaker.Config{
			FailureRateThreshold:       0.5,
			SlowCallDurationThreshold:  500 * time.Millisecond,
			MinimumThroughput:          10,
			WaitDurationInOpenState:    10 * time.Second,
			HalfOpenMaxCalls:           3,
		},
		NegativeCacheTTL: 30 * time.Second,
		DefaultTTL:       time.Hour,
		Scheduler: SchedulerConfig{
			CorePoolSize:  4,
			MaxPoolSize:   16,
			QueueCapacity: 1000,
		},
	}
}

// LoadConfigFile reads and parses a YAML config file, starting from
// DefaultConfig and overlaying whatever the file sets.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
