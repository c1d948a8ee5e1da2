// Package timeouts holds the operation deadlines handlers and workers derive
// their contexts from.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks
//   - Short: point reads (profile, article, session)
//   - Medium: list queries and single-document writes
//   - Long: writes touching several documents (register, bookmark, follow)
//   - Batch: the reconcile pass
package timeouts

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 30 * time.Second
	DefaultBatch  = 2 * time.Minute
)

// EnvPrefix prefixes the environment variables read by ConfigureFromEnv.
const EnvPrefix = "SOCIODEV_TIMEOUT_"

var mu sync.RWMutex

var (
	ping   = DefaultPing
	short  = DefaultShort
	medium = DefaultMedium
	long   = DefaultLong
	batch  = DefaultBatch
)

func get(d *time.Duration) time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return *d
}

func Ping() time.Duration   { return get(&ping) }
func Short() time.Duration  { return get(&short) }
func Medium() time.Duration { return get(&medium) }
func Long() time.Duration   { return get(&long) }
func Batch() time.Duration  { return get(&batch) }

// Config holds timeout values. Zero values keep the current setting.
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
	Batch  time.Duration
}

func (c Config) targets() []struct {
	name string
	val  time.Duration
	dst  *time.Duration
} {
	return []struct {
		name string
		val  time.Duration
		dst  *time.Duration
	}{
		{"PING", c.Ping, &ping},
		{"SHORT", c.Short, &short},
		{"MEDIUM", c.Medium, &medium},
		{"LONG", c.Long, &long},
		{"BATCH", c.Batch, &batch},
	}
}

// Configure sets custom timeout values. Call it at startup.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	for _, t := range cfg.targets() {
		if t.val > 0 {
			*t.dst = t.val
		}
	}
}

// Reset restores the defaults. Used by tests.
func Reset() {
	Configure(Config{DefaultPing, DefaultShort, DefaultMedium, DefaultLong, DefaultBatch})
}

// ConfigureFromEnv reads SOCIODEV_TIMEOUT_{PING,SHORT,MEDIUM,LONG,BATCH}
// (Go durations such as "5s" or "2m"). Unset or invalid values are ignored.
// It returns how many values were applied.
func ConfigureFromEnv() int {
	mu.Lock()
	defer mu.Unlock()
	n := 0
	for _, t := range (Config{}).targets() {
		v := os.Getenv(EnvPrefix + t.name)
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*t.dst = d
			n++
		}
	}
	return n
}

// Current returns the active configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Ping: ping, Short: short, Medium: medium, Long: long, Batch: batch}
}

// WithTimeout is context.WithTimeout whose cancel func logs when the deadline
// was hit.
//
//	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "register")
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
