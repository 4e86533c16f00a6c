package assets

import (
	"fmt"
	"html"
	"io"
	"sync"

	"github.com/keithlinneman/oboxads-web/internal/xerrors"
)

// Queue is the reference host's per-request registrar. It keeps the first
// registration per bundle name and renders tags in registration order, with
// known dependencies emitted ahead of their dependents.
type Queue struct {
	mu   sync.Mutex
	libs map[string]Registration
	seen map[string]struct{}
	regs []Registration
}

// NewQueue creates a queue. libs are the host-provided libraries that bundle
// dependencies can resolve to (e.g. jquery).
func NewQueue(libs map[string]Registration) *Queue {
	return &Queue{libs: libs, seen: make(map[string]struct{})}
}

func (q *Queue) Enqueue(reg Registration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.seen[reg.Bundle]; dup {
		return
	}
	q.seen[reg.Bundle] = struct{}{}
	q.regs = append(q.regs, reg)
}

// Registrations returns a copy of what has been enqueued so far.
func (q *Queue) Registrations() []Registration {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Registration, len(q.regs))
	copy(out, q.regs)
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.regs)
}

// Render writes link/script tags. Dependencies that are neither host
// libraries nor enqueued bundles are returned as missing and skipped.
func (q *Queue) Render(w io.Writer) (missing []string, err error) {
	regs := q.Registrations()

	enqueued := make(map[string]bool, len(regs))
	for _, r := range regs {
		enqueued[r.Bundle] = true
	}

	written := make(map[string]bool)
	var emit func(r Registration) error
	emit = func(r Registration) error {
		if written[r.Bundle] {
			return nil
		}
		written[r.Bundle] = true
		for _, dep := range r.Deps {
			if lib, ok := q.libs[dep]; ok {
				if err := emit(lib); err != nil {
					return err
				}
				continue
			}
			if !enqueued[dep] {
				missing = append(missing, dep)
			}
		}
		return writeTag(w, r)
	}

	for _, r := range regs {
		if err := emit(r); err != nil {
			return missing, err
		}
	}
	return missing, nil
}

func writeTag(w io.Writer, r Registration) error {
	var err error
	switch r.Kind {
	case KindStyle:
		_, err = fmt.Fprintf(w, "<link rel='stylesheet' id='%s-css' href='%s' type='text/css' media='all' />\n",
			html.EscapeString(r.Bundle), html.EscapeString(r.URL))
	case KindScript:
		_, err = fmt.Fprintf(w, "<script type='text/javascript' id='%s-js' src='%s'></script>\n",
			html.EscapeString(r.Bundle), html.EscapeString(r.URL))
	default:
		err = xerrors.Newf("unknown asset kind %q for bundle %s", r.Kind, r.Bundle)
	}
	return err
}
