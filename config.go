package secretd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/secretd/internal/fault"
	"pkt.systems/secretd/internal/locking"
	"pkt.systems/secretd/internal/record"
)

// Strategy selects how the record and the session counters are synchronized.
type Strategy = locking.Strategy

const (
	// Blocking guards state with sleeping mutexes.
	Blocking = locking.Blocking
	// SpinOnly guards state with busy-wait spin locks.
	SpinOnly = locking.SpinOnly
	// Atomic keeps counters lock-free and spin-guards the secret bytes.
	Atomic = locking.Atomic
)

// ParseStrategy maps a configured strategy name onto a Strategy.
func ParseStrategy(raw string) (Strategy, error) {
	return locking.ParseStrategy(raw)
}

const (
	// DefaultStrategy is used when Config.Strategy is empty.
	DefaultStrategy = "blocking"
	// DefaultCapacity is the secret buffer size in bytes.
	DefaultCapacity = record.DefaultCapacity
	// MaxCapacity bounds Config.Capacity.
	MaxCapacity = 1 << 20
	// DefaultFaultDelay is how long an injected fault suspends the holder.
	DefaultFaultDelay = fault.DefaultDelay
	// DefaultMaxSpinHold is the spin hold bound enforced by the monitor.
	DefaultMaxSpinHold = locking.DefaultMaxSpinHold
	// DefaultViolationPolicy keeps running after a contract violation.
	DefaultViolationPolicy = string(locking.PolicyLog)
	// DefaultMetricsListen is the Prometheus scrape endpoint (empty disables).
	DefaultMetricsListen = ""
	// DefaultPprofListen is the pprof debug listener (empty disables).
	DefaultPprofListen = ""
	// DefaultConfigFileName is the config file searched for when --config is omitted.
	DefaultConfigFileName = "config.yaml"
)

// Config captures the tunables for a secretd server.
type Config struct {
	// Strategy is one of "blocking", "spin" or "atomic".
	Strategy      string
	Capacity      int
	InitialSecret string

	// InjectFault makes every write suspend while holding the record guard.
	// It exists to demonstrate violation detection and is never meant for
	// normal operation.
	InjectFault bool
	FaultDelay  time.Duration

	// MaxSpinHold bounds spin critical sections; negative disables the check.
	MaxSpinHold     time.Duration
	ViolationPolicy string

	MetricsListen          string
	PprofListen            string
	EnableProfilingMetrics bool
	OTLPEndpoint           string

	strategy locking.Strategy
	policy   locking.Policy
}

// Validate normalises defaults and rejects invalid values.
func (c *Config) Validate() error {
	strategy, err := locking.ParseStrategy(c.Strategy)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.strategy = strategy
	c.Strategy = strategy.String()

	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Capacity < 2 || c.Capacity > MaxCapacity {
		return fmt.Errorf("config: capacity must be between 2 and %d bytes (got %d)", MaxCapacity, c.Capacity)
	}
	if len(c.InitialSecret) > c.Capacity {
		return fmt.Errorf("config: initial secret is %d bytes, capacity is %d", len(c.InitialSecret), c.Capacity)
	}

	if c.FaultDelay == 0 {
		c.FaultDelay = DefaultFaultDelay
	} else if c.FaultDelay < 0 {
		return fmt.Errorf("config: fault delay must be >= 0")
	}
	if c.MaxSpinHold == 0 {
		c.MaxSpinHold = DefaultMaxSpinHold
	}

	policy, err := locking.ParsePolicy(c.ViolationPolicy)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.policy = policy
	c.ViolationPolicy = string(policy)

	c.MetricsListen = strings.TrimSpace(c.MetricsListen)
	c.PprofListen = strings.TrimSpace(c.PprofListen)
	c.OTLPEndpoint = strings.TrimSpace(c.OTLPEndpoint)
	if c.EnableProfilingMetrics && c.MetricsListen == "" {
		return fmt.Errorf("config: profiling metrics require metrics-listen")
	}
	return nil
}

// LockStrategy returns the parsed strategy. It is only meaningful after
// Validate.
func (c Config) LockStrategy() Strategy {
	return c.strategy
}

// DefaultConfigDir returns the default configuration directory ($HOME/.secretd).
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("SECRETD_CONFIG_DIR")); override != "" {
		if filepath.IsAbs(override) {
			return override, nil
		}
		return filepath.Abs(override)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".secretd"), nil
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFileName), nil
}
