// Package timesync keeps wall-clock time corrected against an NTP server.
// The system clock is never stepped; Now applies the measured offset.
package timesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/cenkalti/backoff/v4"

	"github.com/wilot/weather-station/internal/config"
)

const retryDelay = 15 * time.Second

// QueryFunc returns the local clock's offset from the server.
type QueryFunc func(ctx context.Context, server string) (time.Duration, error)

func queryNTP(ctx context.Context, server string) (time.Duration, error) {
	opts := ntp.QueryOptions{Timeout: 5 * time.Second}
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < opts.Timeout {
			opts.Timeout = d
		}
	}
	resp, err := ntp.QueryWithOptions(server, opts)
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}

type Clock struct {
	server   string
	interval time.Duration
	loc      *time.Location
	logger   *slog.Logger
	query    QueryFunc
	retry    backoff.BackOff

	mu       sync.Mutex
	offset   time.Duration
	lastSync time.Time
	onSync   func(time.Time)

	done chan struct{}
}

func New(cfg config.Config, logger *slog.Logger) *Clock {
	loc := cfg.TimeZone
	if loc == nil {
		loc = time.UTC
	}
	interval := cfg.NTPResyncInterval
	if interval < config.MinNTPResyncInterval {
		interval = config.MinNTPResyncInterval
	}
	return &Clock{
		server:   cfg.NTPServer,
		interval: interval,
		loc:      loc,
		logger:   logger.With("ntp_server", cfg.NTPServer),
		query:    queryNTP,
		retry:    backoff.NewConstantBackOff(retryDelay),
	}
}

// OnSync registers fn to be called after every successful sync.
func (c *Clock) OnSync(fn func(now time.Time)) {
	c.mu.Lock()
	c.onSync = fn
	c.mu.Unlock()
}

// Now is the corrected wall-clock time in the configured zone.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	off := c.offset
	c.mu.Unlock()
	return time.Now().Add(off).In(c.loc)
}

// Synced reports whether at least one sync has succeeded.
func (c *Clock) Synced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.lastSync.IsZero()
}

func (c *Clock) Offset() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// Sync queries the server once and applies the offset.
func (c *Clock) Sync(ctx context.Context) error {
	off, err := c.query(ctx, c.server)
	if err != nil {
		return fmt.Errorf("ntp query %s: %w", c.server, err)
	}

	c.mu.Lock()
	c.offset = off
	c.lastSync = time.Now()
	fn := c.onSync
	c.mu.Unlock()

	now := c.Now()
	c.logger.Debug("clock synced", "offset", off)
	if fn != nil {
		fn(now)
	}
	return nil
}

// Start syncs in the background: immediately, then every resync interval.
// Failed syncs are retried after a fixed delay. The loop stops with ctx.
func (c *Clock) Start(ctx context.Context) {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return
	}
	c.done = make(chan struct{})
	c.mu.Unlock()

	go func() {
		defer close(c.done)

		for {
			wait := c.interval
			if err := c.Sync(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				wait = c.retry.NextBackOff()
				c.logger.Warn("clock sync failed", "retry_in", wait, "error", err)
			} else {
				c.retry.Reset()
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
}

// Wait blocks until the background loop started by Start has exited.
func (c *Clock) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}
