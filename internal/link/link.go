// Package link drives a connection through Disconnected, Connecting and
// Connected. Poll advances the machine by at most one step and never
// blocks longer than a single dial; Await is the driver loop around it.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	ErrTimeout      = errors.New("link: timed out waiting for connection")
	ErrNotConnected = errors.New("link: not connected")
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("link.State(%d)", int(s))
	}
}

// Endpoint is the thing being connected. Dial starts (or makes) an attempt;
// Connected is the status query. A synchronous Dial simply returns once the
// outcome is known.
type Endpoint interface {
	Dial(ctx context.Context) error
	Connected() bool
}

// EndpointFuncs adapts a pair of functions to Endpoint.
type EndpointFuncs struct {
	DialFunc      func(ctx context.Context) error
	ConnectedFunc func() bool
}

func (e EndpointFuncs) Dial(ctx context.Context) error { return e.DialFunc(ctx) }
func (e EndpointFuncs) Connected() bool                 { return e.ConnectedFunc() }

type Options struct {
	// Backoff spaces failed attempts. Defaults to a constant 1s.
	Backoff backoff.BackOff
	// PollInterval is how often Await polls. Defaults to 200ms.
	PollInterval time.Duration
	// AttemptTimeout bounds how long a started attempt may stay in
	// Connecting. Zero means no bound.
	AttemptTimeout time.Duration
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

type Link struct {
	name   string
	ep     Endpoint
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	since    time.Time
	next     time.Time
	attempts int
}

func New(name string, ep Endpoint, opts Options, logger *slog.Logger) *Link {
	if opts.Backoff == nil {
		opts.Backoff = backoff.NewConstantBackOff(time.Second)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Link{
		name:   name,
		ep:     ep,
		opts:   opts,
		logger: logger.With("link", name),
	}
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Attempts is the number of dials made so far.
func (l *Link) Attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

// Poll advances the state machine by one step and returns the new state.
func (l *Link) Poll(ctx context.Context) State {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.opts.Now()

	switch l.state {
	case Connected:
		if !l.ep.Connected() {
			l.logger.Warn("link lost")
			l.state = Disconnected
			l.next = now
		}
		return l.state

	case Disconnected:
		if now.Before(l.next) {
			return l.state
		}
		if err := l.dial(ctx, now); err != nil {
			return l.state
		}
	}

	// Connecting
	if l.ep.Connected() {
		l.up()
	} else if l.opts.AttemptTimeout > 0 && now.Sub(l.since) >= l.opts.AttemptTimeout {
		l.fail(now, fmt.Errorf("no connection after %s", l.opts.AttemptTimeout))
	}
	return l.state
}

// Attempt makes one dial immediately, ignoring the backoff schedule, and
// reports whether the link is up afterwards.
func (l *Link) Attempt(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.dial(ctx, l.opts.Now()); err != nil {
		return err
	}
	if !l.ep.Connected() {
		l.state = Disconnected
		return ErrNotConnected
	}
	l.up()
	return nil
}

// Await polls until the link is Connected, ctx is done, or timeout elapses.
// A zero timeout waits indefinitely.
func (l *Link) Await(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(l.opts.PollInterval)
	defer ticker.Stop()

	for {
		if l.Poll(ctx) == Connected {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%s: %w", l.name, ErrTimeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// dial must be called with l.mu held.
func (l *Link) dial(ctx context.Context, now time.Time) error {
	l.attempts++
	l.state = Connecting
	l.since = now
	l.logger.Debug("link connecting", "attempt", l.attempts)

	if err := l.ep.Dial(ctx); err != nil {
		l.fail(now, err)
		return err
	}
	return nil
}

func (l *Link) up() {
	l.state = Connected
	l.opts.Backoff.Reset()
	l.logger.Info("link up", "attempts", l.attempts)
}

func (l *Link) fail(now time.Time, err error) {
	l.state = Disconnected
	wait := l.opts.Backoff.NextBackOff()
	if wait == backoff.Stop {
		wait = l.opts.PollInterval
	}
	l.next = now.Add(wait)
	l.logger.Warn("link attempt failed", "attempt", l.attempts, "retry_in", wait, "error", err)
}
