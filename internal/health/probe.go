package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/oboxads-web/internal/xerrors"
)

// Probe is evaluated per request. nil means pass; an error fails with its
// message as the reason.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed always passes, or always fails with reason ("unhealthy" if empty).
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	return func(context.Context) error { return xerrors.New(reason) }
}

// All passes when every non-nil probe passes and returns the first failure.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Any passes when at least one non-nil probe passes; otherwise it returns
// the last failure.
func Any(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		var last error
		for _, p := range ps {
			if p == nil {
				continue
			}
			err := p.Check(ctx)
			if err == nil {
				return nil
			}
			last = err
		}
		if last == nil {
			return xerrors.New("no healthy probes")
		}
		return last
	}
}

// ShutdownGate fails readiness from Set until Clear.
type ShutdownGate struct {
	draining atomic.Bool
	reason   atomic.Value
}

func (g *ShutdownGate) Set(reason string) {
	g.reason.Store(reason)
	g.draining.Store(true)
}

func (g *ShutdownGate) Clear() {
	g.draining.Store(false)
	g.reason.Store("")
}

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if !g.draining.Load() {
			return nil
		}
		r, _ := g.reason.Load().(string)
		if r == "" {
			r = "draining"
		}
		return xerrors.New(r)
	}
}

// SettingsState is the part of adconfig.Manager the readiness probe reads.
type SettingsState interface {
	ReadyErr() error
	LoadedAt() time.Time
}

// Settings fails until s has an active snapshot. When maxAge > 0 it also
// fails once the snapshot is older than maxAge; main only sets that when
// remote updates are enabled.
func Settings(s SettingsState, maxAge time.Duration, now func() time.Time) CheckFunc {
	if now == nil {
		now = time.Now
	}
	return func(context.Context) error {
		if s == nil {
			return xerrors.New("ad settings: not configured")
		}
		if err := s.ReadyErr(); err != nil {
			return err
		}
		if maxAge > 0 {
			if age := now().Sub(s.LoadedAt()); age > maxAge {
				return xerrors.Newf("ad settings: snapshot is %s old (max %s)", age.Truncate(time.Second), maxAge)
			}
		}
		return nil
	}
}
