package adconfig

import (
	"errors"
	"sync/atomic"
	"time"
)

type Source string

const (
	SourceUnknown  Source = "unknown"
	SourceDefaults Source = "defaults"
	SourceFlags    Source = "flags"
	SourceS3       Source = "s3"
)

type Snapshot struct {
	Settings Settings
	// Hash is the sha256 of the settings document, empty for local sources.
	Hash     string
	Source   Source
	LoadedAt time.Time
}

// Provider is what render-time code needs: the settings in effect now.
type Provider interface {
	Current() Settings
}

// Manager owns the active snapshot. Reads are lock-free.
type Manager struct {
	active atomic.Pointer[Snapshot]
}

func NewManager() *Manager { return &Manager{} }

func (m *Manager) Set(s Snapshot) {
	cp := new(Snapshot)
	*cp = s
	if cp.LoadedAt.IsZero() {
		cp.LoadedAt = time.Now().UTC()
	}
	m.active.Store(cp)
}

func (m *Manager) Get() (*Snapshot, bool) {
	s := m.active.Load()
	return s, s != nil
}

// Current returns the active settings, or Defaults when nothing is loaded.
func (m *Manager) Current() Settings {
	if s := m.active.Load(); s != nil {
		return s.Settings
	}
	return Defaults()
}

func (m *Manager) Hash() string {
	if s := m.active.Load(); s != nil {
		return s.Hash
	}
	return ""
}

func (m *Manager) Source() Source {
	if s := m.active.Load(); s != nil {
		return s.Source
	}
	return SourceUnknown
}

func (m *Manager) LoadedAt() time.Time {
	if s := m.active.Load(); s != nil {
		return s.LoadedAt
	}
	return time.Time{}
}

// ReadyErr reports whether settings have been loaded.
func (m *Manager) ReadyErr() error {
	if _, ok := m.Get(); !ok {
		return errors.New("adconfig: no active settings")
	}
	return nil
}
