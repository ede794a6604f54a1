package platform

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the ambient settings shared across ledger, breaker, retry,
// policy, bandit and recovery components. It follows the three-layer
// priority every component in this repo honors: defaults, then
// environment variables, then functional options passed to the
// component's own constructor.
type Config struct {
	// LedgerDir is where the idempotency ledger persists one JSON file
	// per operation fingerprint.
	LedgerDir string `env:"KERNEL_LEDGER_DIR"`

	// LedgerMaxAge is how long a non-pending record may live before
	// cleanup considers it stale. Default 24h.
	LedgerMaxAge time.Duration `env:"KERNEL_LEDGER_MAX_AGE"`

	// LedgerStuckThreshold is how long a pending record may live before
	// should_execute treats it as abandoned. Default 10m.
	LedgerStuckThreshold time.Duration `env:"KERNEL_LEDGER_STUCK_THRESHOLD"`

	// PolicyConfigPath points at the YAML policy document (spec §6).
	PolicyConfigPath string `env:"KERNEL_POLICY_CONFIG"`

	// Logging controls the ambient ProductionLogger, when the caller
	// doesn't supply their own Logger implementation.
	Logging LoggingConfig

	logger Logger
}

// Option mutates a Config during construction, the highest-priority
// configuration layer.
type Option func(*Config)

// WithLogger injects a logger used while loading configuration itself.
func WithLogger(l Logger) Option {
	return func(c *Config) { c.logger = l }
}

// WithLedgerDir overrides the ledger storage directory.
func WithLedgerDir(dir string) Option {
	return func(c *Config) { c.LedgerDir = dir }
}

// WithPolicyConfigPath overrides the policy document path.
func WithPolicyConfigPath(path string) Option {
	return func(c *Config) { c.PolicyConfigPath = path }
}

// DefaultConfig returns the lowest-priority layer of configuration.
func DefaultConfig() *Config {
	return &Config{
		LedgerDir:            "./.kernel/ledger",
		LedgerMaxAge:         24 * time.Hour,
		LedgerStuckThreshold: 10 * time.Minute,
		PolicyConfigPath:     "",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		logger: NoOpLogger{},
	}
}

// Load builds a Config by layering defaults, then environment variables,
// then the supplied options, validating the result. Unknown environment
// variables are simply not read; they never cause a failure.
func Load(opts ...Option) (*Config, error) {
	c := DefaultConfig()
	c.loadFromEnv()
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = NoOpLogger{}
	}
	return c, c.Validate()
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("KERNEL_LEDGER_DIR"); v != "" {
		c.LedgerDir = v
	}
	if v := os.Getenv("KERNEL_LEDGER_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.LedgerMaxAge = d
		}
	}
	if v := os.Getenv("KERNEL_LEDGER_STUCK_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.LedgerStuckThreshold = d
		}
	}
	if v := os.Getenv("KERNEL_POLICY_CONFIG"); v != "" {
		c.PolicyConfigPath = v
	}
	if v := os.Getenv("KERNEL_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("KERNEL_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate rejects configuration that would make every downstream
// component misbehave silently.
func (c *Config) Validate() error {
	if c.LedgerDir == "" {
		return NewKernelError("config.Validate", "invalid_input", ErrInvalidInput)
	}
	if c.LedgerMaxAge <= 0 {
		return NewKernelError("config.Validate", "invalid_input", ErrInvalidInput)
	}
	if c.LedgerStuckThreshold <= 0 {
		return NewKernelError("config.Validate", "invalid_input", ErrInvalidInput)
	}
	return nil
}

// parseBoolEnv is a small helper mirrored from the teacher's own
// environment-parsing convention; used by components that read their own
// booleans directly (e.g. bandit persistence enablement).
func parseBoolEnv(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
