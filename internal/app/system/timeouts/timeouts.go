// Package timeouts holds the deadlines handlers and jobs put on store calls.
//
// Handlers pick the tier that matches the work: Short for single-document
// reads and writes, Medium for lists and multi-step writes, Long for
// reports and uploads, Batch for background jobs.
package timeouts

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 30 * time.Second
	DefaultBatch  = 60 * time.Second
)

var (
	ping   atomic.Int64
	short  atomic.Int64
	medium atomic.Int64
	long   atomic.Int64
	batch  atomic.Int64
)

func init() { Reset() }

func Ping() time.Duration   { return time.Duration(ping.Load()) }
func Short() time.Duration  { return time.Duration(short.Load()) }
func Medium() time.Duration { return time.Duration(medium.Load()) }
func Long() time.Duration   { return time.Duration(long.Load()) }
func Batch() time.Duration  { return time.Duration(batch.Load()) }

// Config holds timeout overrides. Zero fields keep the current value.
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
	Batch  time.Duration
}

// Configure applies the non-zero values in cfg.
func Configure(cfg Config) {
	set(&ping, cfg.Ping)
	set(&short, cfg.Short)
	set(&medium, cfg.Medium)
	set(&long, cfg.Long)
	set(&batch, cfg.Batch)
}

// Reset restores all timeouts to defaults.
func Reset() {
	ping.Store(int64(DefaultPing))
	short.Store(int64(DefaultShort))
	medium.Store(int64(DefaultMedium))
	long.Store(int64(DefaultLong))
	batch.Store(int64(DefaultBatch))
}

// ConfigureFromEnv reads VISADESK_TIMEOUT_{PING,SHORT,MEDIUM,LONG,BATCH}
// and returns how many values were applied. Unparseable values are skipped.
func ConfigureFromEnv() int {
	applied := 0
	for name, v := range map[string]*atomic.Int64{
		"VISADESK_TIMEOUT_PING":   &ping,
		"VISADESK_TIMEOUT_SHORT":  &short,
		"VISADESK_TIMEOUT_MEDIUM": &medium,
		"VISADESK_TIMEOUT_LONG":   &long,
		"VISADESK_TIMEOUT_BATCH":  &batch,
	} {
		raw := os.Getenv(name)
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			v.Store(int64(d))
			applied++
		}
	}
	return applied
}

// Current returns the timeouts in effect.
func Current() Config {
	return Config{Ping: Ping(), Short: Short(), Medium: Medium(), Long: Long(), Batch: Batch()}
}

func set(v *atomic.Int64, d time.Duration) {
	if d > 0 {
		v.Store(int64(d))
	}
}

// WithTimeout derives a context with the given deadline. The returned
// cancel func logs a warning when the deadline was the reason the
// operation ended.
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if log != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
