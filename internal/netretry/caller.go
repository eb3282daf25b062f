// Package netretry wraps provider calls with a fixed retry budget and an
// offline gate that holds calls while the provider keeps failing.
package netretry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"

	"github.com/joshsymonds/chronotriage/internal/gmail"
)

// Config controls retry and gate behaviour. Zero fields take the defaults below.
type Config struct {
	Attempts  uint          // total tries per call
	Delay     time.Duration // fixed pause between tries
	TripAfter uint32        // consecutive transient failures before the gate closes
	Offline   time.Duration // how long the gate stays closed before probing again
}

// DefaultConfig matches the provider collaborator: three tries ten seconds apart.
func DefaultConfig() Config {
	return Config{Attempts: 3, Delay: 10 * time.Second, TripAfter: 3, Offline: 30 * time.Second}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Attempts == 0 {
		c.Attempts = d.Attempts
	}
	if c.Delay <= 0 {
		c.Delay = d.Delay
	}
	if c.TripAfter == 0 {
		c.TripAfter = d.TripAfter
	}
	if c.Offline <= 0 {
		c.Offline = d.Offline
	}
	return c
}

// Caller executes operations through the retry loop and offline gate.
type Caller struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
}

// New returns a Caller. A nil logger writes to stderr.
func New(cfg Config, logger *slog.Logger) *Caller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	cfg = cfg.withDefaults()
	c := &Caller{cfg: cfg, log: logger}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail",
		MaxRequests: 1,
		Timeout:     cfg.Offline,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.TripAfter
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider gate", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Do runs fn until it succeeds, fails permanently, or the retry budget runs out.
// Time spent waiting for the gate to reopen does not use up attempts.
func (c *Caller) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := c.waitOnline(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		attempt++
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, fn(ctx)
		})
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return struct{}{}, err
		case !Retryable(err):
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.Delay)),
		backoff.WithMaxTries(c.cfg.Attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("retrying provider call", "op", op, "attempt", attempt, "error", err, "next", next)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Caller) waitOnline(ctx context.Context) error {
	for c.breaker.State() == gobreaker.StateOpen {
		c.log.Info("provider offline, holding call", "wait", c.cfg.Offline)
		timer := time.NewTimer(c.cfg.Offline)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gmail.ErrLabelExists) || errors.Is(err, gmail.ErrNotFound) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests, gerr.Code == http.StatusRequestTimeout:
			return true
		case gerr.Code >= http.StatusInternalServerError:
			return true
		case gerr.Code >= http.StatusBadRequest:
			return false
		}
	}
	return true
}
