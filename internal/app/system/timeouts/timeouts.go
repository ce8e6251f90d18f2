// Package timeouts provides centralized timeout values for handler operations.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks and connectivity verification
//   - Short: single-document reads, counts
//   - Medium: list queries and the duplicate scan that goes with them
//   - Long: writes that also touch the letter store or the mailer
//   - Lookup: one call to the fiscal lookup service
//   - Batch: key rotation and other bulk maintenance
//
// Values can be changed at startup with Configure or ConfigureFromEnv.
package timeouts

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 30 * time.Second
	DefaultLookup = 8 * time.Second
	DefaultBatch  = 5 * time.Minute
)

// EnvPrefix prefixes the environment variables read by ConfigureFromEnv.
const EnvPrefix = "BOURSES_TIMEOUT_"

var (
	mu  sync.RWMutex
	cur = defaults()
)

func defaults() Config {
	return Config{
		Ping:   DefaultPing,
		Short:  DefaultShort,
		Medium: DefaultMedium,
		Long:   DefaultLong,
		Lookup: DefaultLookup,
		Batch:  DefaultBatch,
	}
}

func get(f func(Config) time.Duration) time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return f(cur)
}

// Ping returns the timeout for health checks.
func Ping() time.Duration { return get(func(c Config) time.Duration { return c.Ping }) }

// Short returns the timeout for single-document reads.
func Short() time.Duration { return get(func(c Config) time.Duration { return c.Short }) }

// Medium returns the timeout for list queries.
func Medium() time.Duration { return get(func(c Config) time.Duration { return c.Medium }) }

// Long returns the timeout for multi-step writes. Viewing an application
// uses it too since the first view may wait on the fiscal lookup.
func Long() time.Duration { return get(func(c Config) time.Duration { return c.Long }) }

// Lookup returns the budget of one fiscal lookup call.
func Lookup() time.Duration { return get(func(c Config) time.Duration { return c.Lookup }) }

// Batch returns the timeout for bulk maintenance.
func Batch() time.Duration { return get(func(c Config) time.Duration { return c.Batch }) }

// Config holds timeout configuration values.
// Zero values are ignored (current values are kept).
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
	Lookup time.Duration
	Batch  time.Duration
}

// fields pairs each Config field with its environment suffix.
func (c *Config) fields() map[string]*time.Duration {
	return map[string]*time.Duration{
		"PING":   &c.Ping,
		"SHORT":  &c.Short,
		"MEDIUM": &c.Medium,
		"LONG":   &c.Long,
		"LOOKUP": &c.Lookup,
		"BATCH":  &c.Batch,
	}
}

// Configure sets custom timeout values. It should be called during
// startup before handlers are registered.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	dst := cur.fields()
	for k, v := range cfg.fields() {
		if *v > 0 {
			*dst[k] = *v
		}
	}
}

// Reset restores all timeouts to their default values.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cur = defaults()
}

// ConfigureFromEnv reads BOURSES_TIMEOUT_PING, _SHORT, _MEDIUM, _LONG,
// _LOOKUP and _BATCH as Go durations ("500ms", "2m"). Unset, invalid and
// non-positive values are skipped. It returns how many were applied.
func ConfigureFromEnv() int {
	var cfg Config
	configured := 0
	for suffix, dst := range cfg.fields() {
		v := os.Getenv(EnvPrefix + suffix)
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
			configured++
		}
	}
	Configure(cfg)
	return configured
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cur
}

// WithTimeout creates a context with timeout and returns a cancel function that
// logs a warning if the context was canceled due to deadline exceeded.
//
//	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "save notification")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
