// Package handshake implements the command and status coil exchange of the
// assembly controller: assert a command coil, wait for the paired status
// coil to confirm, deassert the command, wait for the status to clear.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deepmodeling/coincell-station/internal/plc"
	"go.uber.org/zap"
)

var (
	ErrTimeout     = errors.New("handshake: timed out waiting for controller")
	ErrWriteFailed = errors.New("handshake: command write failed")
)

// WaitResult is the outcome of one bounded poll loop.
type WaitResult int

const (
	Ready WaitResult = iota
	TimedOut
	Cancelled
)

func (r WaitResult) String() string {
	switch r {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Probe samples the awaited condition. A faulted sample keeps the loop
// polling; the controller may simply not be answering yet.
type Probe func(ctx context.Context) (ok bool, fault bool)

// Config bounds a poll loop. Timeout <= 0 waits forever (cancellation
// via ctx still applies).
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Wait polls probe at the configured interval until it reports true, the
// timeout expires, or ctx is cancelled. The probe is sampled once before
// the first interval elapses.
func Wait(ctx context.Context, probe Probe, cfg Config) WaitResult {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}

	var deadline <-chan time.Time
	if cfg.Timeout > 0 {
		timer := time.NewTimer(cfg.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ok, _ := probe(ctx); ok {
			return Ready
		}

		select {
		case <-ctx.Done():
			return Cancelled
		case <-deadline:
			return TimedOut
		case <-ticker.C:
		}
	}
}

// Writer is the command side of a handshake pair.
type Writer interface {
	Write(ctx context.Context, value any, opts ...plc.Option) (bool, error)
}

// Reader is the status side of a handshake pair.
type Reader interface {
	ReadBool(ctx context.Context, opts ...plc.Option) (bool, bool)
}

// Handshake pairs a command node with its status node.
type Handshake struct {
	Name   string
	Cmd    Writer
	Status Reader
	Cfg    Config
	Logger *zap.Logger
}

// Run executes the full assert, confirm, deassert, clear cycle.
// The command is asserted exactly once and deasserted exactly once.
func (h *Handshake) Run(ctx context.Context) error {
	if err := h.write(ctx, true); err != nil {
		return err
	}

	if err := h.await(ctx, "confirm", true); err != nil {
		return err
	}

	if err := h.write(ctx, false); err != nil {
		return err
	}

	return h.await(ctx, "clear", false)
}

func (h *Handshake) write(ctx context.Context, value bool) error {
	fault, err := h.Cmd.Write(ctx, value)
	if err != nil {
		return fmt.Errorf("%s: %w", h.Name, err)
	}
	if fault {
		return fmt.Errorf("%s: %w", h.Name, ErrWriteFailed)
	}
	return nil
}

func (h *Handshake) await(ctx context.Context, phase string, want bool) error {
	result := Wait(ctx, func(ctx context.Context) (bool, bool) {
		v, fault := h.Status.ReadBool(ctx)
		if fault {
			return false, true
		}
		return v == want, false
	}, h.Cfg)

	switch result {
	case Ready:
		if h.Logger != nil {
			h.Logger.Debug("Handshake phase complete",
				zap.String("handshake", h.Name),
				zap.String("phase", phase))
		}
		return nil
	case TimedOut:
		return fmt.Errorf("%s %s: %w", h.Name, phase, ErrTimeout)
	default:
		return ctx.Err()
	}
}
