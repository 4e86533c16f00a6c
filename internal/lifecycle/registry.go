package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/oboxads-web/internal/log"
	"github.com/keithlinneman/oboxads-web/internal/xerrors"
)

var (
	ErrFrozen           = errors.New("lifecycle registry is frozen")
	ErrNilCallback      = errors.New("nil lifecycle callback")
	ErrDuplicateBinding = errors.New("callback already bound to phase")
)

// Recorder receives dispatch metrics. *metrics.ServerMetrics satisfies it.
type Recorder interface {
	ObservePhase(phase string, seconds float64)
	IncCallbackPanic(phase, callback string)
}

// Binding is one named callback attached to a phase.
type Binding struct {
	Phase Phase
	Name  string
	fn    Callback
}

// Registry holds phase bindings. Bindings are added during construction and
// the registry is frozen before the first dispatch; after that it is read-only
// and safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	frozen   bool
	bindings map[Phase][]Binding
	rec      Recorder
}

func NewRegistry(rec Recorder) *Registry {
	return &Registry{
		bindings: make(map[Phase][]Binding),
		rec:      rec,
	}
}

// On binds fn to phase under name. Callbacks for a phase run in the order
// they were bound.
func (r *Registry) On(phase Phase, name string, fn Callback) error {
	if !phase.Valid() {
		return xerrors.Wrapf(ErrUnknownPhase, "bind %s to phase %d", name, int(phase))
	}
	if fn == nil {
		return xerrors.Wrapf(ErrNilCallback, "bind %s to %s", name, phase)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return xerrors.Wrapf(ErrFrozen, "bind %s to %s", name, phase)
	}
	for _, b := range r.bindings[phase] {
		if b.Name == name {
			return xerrors.Wrapf(ErrDuplicateBinding, "bind %s to %s", name, phase)
		}
	}
	r.bindings[phase] = append(r.bindings[phase], Binding{Phase: phase, Name: name, fn: fn})
	return nil
}

func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Bindings returns a copy of the callbacks bound to phase.
func (r *Registry) Bindings(phase Phase) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Binding, len(r.bindings[phase]))
	copy(out, r.bindings[phase])
	return out
}

// Dispatch runs every callback bound to ev.Phase. A panicking callback is
// logged and counted and the remaining callbacks still run. The only error is
// for a phase outside the enum.
func (r *Registry) Dispatch(ctx context.Context, ev *Event) error {
	if !ev.Phase.Valid() {
		return xerrors.Wrapf(ErrUnknownPhase, "dispatch phase %d", int(ev.Phase))
	}

	bindings := r.Bindings(ev.Phase)
	if len(bindings) == 0 {
		return nil
	}

	phase := ev.Phase.String()
	ctx, span := otel.Tracer("oboxads/lifecycle").Start(ctx, "lifecycle."+phase,
		trace.WithAttributes(
			attribute.String("lifecycle.phase", phase),
			attribute.Int("lifecycle.callbacks", len(bindings)),
			attribute.Bool("lifecycle.admin", ev.Request.IsAdminScreen),
		),
	)
	defer span.End()

	start := time.Now()
	for _, b := range bindings {
		if err := r.invoke(ctx, b, ev); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	if r.rec != nil {
		r.rec.ObservePhase(phase, time.Since(start).Seconds())
	}
	return nil
}

func (r *Registry) invoke(ctx context.Context, b Binding, ev *Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = xerrors.Newf("lifecycle callback %s panicked: %v", b.Name, rec)
			log.FromContext(ctx).Error(ctx, err, "recovered lifecycle callback panic",
				"phase", b.Phase.String(),
				"callback", b.Name,
				"stack", string(debug.Stack()),
			)
			if r.rec != nil {
				r.rec.IncCallbackPanic(b.Phase.String(), b.Name)
			}
		}
	}()
	b.fn(ctx, ev)
	return nil
}

func (b Binding) String() string { return fmt.Sprintf("%s:%s", b.Phase, b.Name) }
