package plugin

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/keithlinneman/oboxads-web/internal/adconfig"
	"github.com/keithlinneman/oboxads-web/internal/assets"
	"github.com/keithlinneman/oboxads-web/internal/lifecycle"
	"github.com/keithlinneman/oboxads-web/internal/log"
	"github.com/keithlinneman/oboxads-web/internal/screen"
)

// recordingHost is a minimal lifecycle.Host that remembers what it was given.
type recordingHost struct {
	mu       sync.Mutex
	screenID string
	regs     []assets.Registration
	pages    []lifecycle.AdminPage
}

func (h *recordingHost) Enqueue(reg assets.Registration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.regs = append(h.regs, reg)
}

func (h *recordingHost) AddAdminPage(p lifecycle.AdminPage) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pages = append(h.pages, p)
	return h.screenID
}

func (h *recordingHost) bundles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.regs))
	for _, r := range h.regs {
		out = append(out, r.Bundle)
	}
	return out
}

type fakeMetrics struct {
	mu          sync.Mutex
	activations map[string]int
	adminScreen bool
	phases      []string
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{activations: map[string]int{}} }

func (m *fakeMetrics) ObservePhase(phase string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = append(m.phases, phase)
}
func (m *fakeMetrics) IncCallbackPanic(string, string) {}
func (m *fakeMetrics) IncResourceActivation(bundle string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activations[bundle]++
}
func (m *fakeMetrics) SetAdminScreenRegistered(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adminScreen = v
}

func newTestInstance(t *testing.T, opts Options) *Instance {
	t.Helper()
	i, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return i
}

func dispatch(t *testing.T, i *Instance, phase lifecycle.Phase, h lifecycle.Host, rc screen.RequestContext, out *strings.Builder) {
	t.Helper()
	ev := &lifecycle.Event{Phase: phase, Request: rc, Host: h}
	if out != nil {
		ev.Out = out
	}
	if err := i.Registry().Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("Dispatch(%s): %v", phase, err)
	}
}

func adminContext(id string) screen.RequestContext {
	return screen.RequestContext{IsAdminScreen: true, CurrentScreenID: screen.StringPtr(id)}
}

func TestGetInstance_Singleton(t *testing.T) {
	a, err := GetInstance(Options{})
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	b, err := GetInstance(Options{Slug: "other", Version: "9.9.9"})
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if a != b {
		t.Fatal("GetInstance returned different instances")
	}
	if b.Slug() != DefaultSlug || b.Version() != DefaultVersion {
		t.Fatalf("second call rebuilt the instance: slug=%s version=%s", b.Slug(), b.Version())
	}
	if n := len(a.Registry().Bindings(lifecycle.PhaseInit)); n != 1 {
		t.Fatalf("init bindings = %d, want 1", n)
	}
}

func TestNew_Bindings(t *testing.T) {
	t.Parallel()

	i := newTestInstance(t, Options{})
	if !i.Registry().Frozen() {
		t.Fatal("registry not frozen after construction")
	}

	want := map[lifecycle.Phase][]string{
		lifecycle.PhaseInit:            {"load-text-domain"},
		lifecycle.PhaseAdminMenuBuild:  {"add-admin-menu"},
		lifecycle.PhaseAdminResources:  {"enqueue-admin-styles", "enqueue-admin-scripts"},
		lifecycle.PhasePublicResources: {"enqueue-styles", "enqueue-scripts"},
		lifecycle.PhasePageHeadRender:  {"header-action"},
	}
	for phase, names := range want {
		var got []string
		for _, b := range i.Registry().Bindings(phase) {
			got = append(got, b.Name)
		}
		if !slices.Equal(got, names) {
			t.Errorf("%s bindings = %v, want %v", phase, got, names)
		}
	}
}

func TestRegisterAdminScreen(t *testing.T) {
	t.Parallel()

	m := newFakeMetrics()
	i := newTestInstance(t, Options{Metrics: m})

	if _, ok := i.AdminScreenID(); ok {
		t.Fatal("admin screen id set before registration")
	}

	i.RegisterAdminScreen(context.Background(), "plugins_page_x")
	i.RegisterAdminScreen(context.Background(), "plugins_page_x")
	i.RegisterAdminScreen(context.Background(), "plugins_page_y")
	i.RegisterAdminScreen(context.Background(), "")

	id, ok := i.AdminScreenID()
	if !ok || id != "plugins_page_x" {
		t.Fatalf("AdminScreenID = %q, %v", id, ok)
	}
	if !m.adminScreen {
		t.Fatal("admin screen gauge not set")
	}
}

func TestRegisterAdminScreen_EmptyIDLogged(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	L, err := log.New(log.Options{Level: slog.LevelDebug, JSON: true, Writer: &buf})
	if err != nil {
		t.Fatalf("log.New: %v", err)
	}
	i := newTestInstance(t, Options{Logger: L})

	i.RegisterAdminScreen(context.Background(), "")

	if _, ok := i.AdminScreenID(); ok {
		t.Fatal("empty id registered")
	}
	if !strings.Contains(buf.String(), "ignoring empty admin screen id") {
		t.Fatalf("empty id not logged:\n%s", buf.String())
	}
}

func TestRegisterAdminScreen_Concurrent(t *testing.T) {
	t.Parallel()

	i := newTestInstance(t, Options{})
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			i.RegisterAdminScreen(context.Background(), "same")
		}()
	}
	wg.Wait()
	if id, _ := i.AdminScreenID(); id != "same" {
		t.Fatalf("AdminScreenID = %q", id)
	}
}

func TestAdminPhase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		register string
		rc       screen.RequestContext
		want     []string
	}{
		{"unregistered", "", adminContext("plugins_page_" + DefaultSlug), nil},
		{"match", "plugins_page_" + DefaultSlug, adminContext("plugins_page_" + DefaultSlug),
			[]string{DefaultSlug + "-admin-styles", DefaultSlug + "-admin-script"}},
		{"mismatch", "plugins_page_" + DefaultSlug, adminContext("dashboard"), nil},
		{"no current screen", "plugins_page_" + DefaultSlug, screen.RequestContext{IsAdminScreen: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			i := newTestInstance(t, Options{})
			if tt.register != "" {
				i.RegisterAdminScreen(context.Background(), tt.register)
			}
			h := &recordingHost{}
			dispatch(t, i, lifecycle.PhaseAdminResources, h, tt.rc, nil)
			if got := h.bundles(); !slices.Equal(got, tt.want) {
				t.Fatalf("activated %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPublicPhase_AlwaysActivates(t *testing.T) {
	t.Parallel()

	i := newTestInstance(t, Options{})
	want := []string{DefaultSlug + "-plugin-styles", DefaultSlug + "-plugin-script"}

	for _, rc := range []screen.RequestContext{
		{},
		{Locale: "fr", SectionName: "home", Position: 1},
		adminContext("anything"),
	} {
		h := &recordingHost{}
		dispatch(t, i, lifecycle.PhasePublicResources, h, rc, nil)
		if got := h.bundles(); !slices.Equal(got, want) {
			t.Fatalf("activated %v, want %v", got, want)
		}
	}

	// registering the admin screen changes nothing for public pages
	i.RegisterAdminScreen(context.Background(), "plugins_page_"+DefaultSlug)
	h := &recordingHost{}
	dispatch(t, i, lifecycle.PhasePublicResources, h, screen.RequestContext{}, nil)
	if got := h.bundles(); !slices.Equal(got, want) {
		t.Fatalf("after registration activated %v, want %v", got, want)
	}
}

func TestRegistrationURLs(t *testing.T) {
	t.Parallel()

	i := newTestInstance(t, Options{})
	h := &recordingHost{}
	dispatch(t, i, lifecycle.PhasePublicResources, h, screen.RequestContext{}, nil)

	base := "/wp-content/plugins/" + DefaultSlug
	want := map[string]assets.Registration{
		DefaultSlug + "-plugin-styles": {Kind: assets.KindStyle, URL: base + "/css/public.css?ver=1.0.0"},
		DefaultSlug + "-plugin-script": {Kind: assets.KindScript, URL: base + "/js/public.js?ver=1.0.0", Deps: []string{"jquery"}},
	}
	for _, r := range h.regs {
		w, ok := want[r.Bundle]
		if !ok {
			t.Fatalf("unexpected bundle %s", r.Bundle)
		}
		if r.Kind != w.Kind || r.URL != w.URL || !slices.Equal(r.Deps, w.Deps) {
			t.Errorf("%s = %+v, want %+v", r.Bundle, r, w)
		}
	}
}

func TestRoundTrip_ScreenXThenY(t *testing.T) {
	t.Parallel()

	m := newFakeMetrics()
	i := newTestInstance(t, Options{Metrics: m})

	h := &recordingHost{screenID: "X"}
	dispatch(t, i, lifecycle.PhaseAdminMenuBuild, h, screen.RequestContext{IsAdminScreen: true}, nil)

	if len(h.pages) != 1 {
		t.Fatalf("admin pages = %d", len(h.pages))
	}
	if p := h.pages[0]; p.Capability != "read" || p.Slug != DefaultSlug || p.Render == nil {
		t.Fatalf("admin page = %+v", p)
	}

	dispatch(t, i, lifecycle.PhaseAdminResources, h, adminContext("X"), nil)
	if n := len(h.bundles()); n != 2 {
		t.Fatalf("screen X activated %d bundles, want 2", n)
	}

	h2 := &recordingHost{}
	dispatch(t, i, lifecycle.PhaseAdminResources, h2, adminContext("Y"), nil)
	if n := len(h2.bundles()); n != 0 {
		t.Fatalf("screen Y activated %d bundles, want 0", n)
	}

	if m.activations[DefaultSlug+"-admin-styles"] != 1 || m.activations[DefaultSlug+"-admin-script"] != 1 {
		t.Fatalf("activation metrics = %v", m.activations)
	}
}

func TestAdminMenu_SecondRegistrationKeepsFirstID(t *testing.T) {
	t.Parallel()

	i := newTestInstance(t, Options{})
	dispatch(t, i, lifecycle.PhaseAdminMenuBuild, &recordingHost{screenID: "X"}, screen.RequestContext{}, nil)
	dispatch(t, i, lifecycle.PhaseAdminMenuBuild, &recordingHost{screenID: "Z"}, screen.RequestContext{}, nil)

	if id, _ := i.AdminScreenID(); id != "X" {
		t.Fatalf("AdminScreenID = %q, want X", id)
	}
}

func TestNilHost_NoPanic(t *testing.T) {
	t.Parallel()

	i := newTestInstance(t, Options{})
	i.RegisterAdminScreen(context.Background(), "X")
	for _, p := range lifecycle.Phases() {
		dispatch(t, i, p, nil, adminContext("X"), nil)
	}
}

func TestHeaderAction(t *testing.T) {
	t.Parallel()

	s := adconfig.Defaults()
	s.Site = "example.org"
	i := newTestInstance(t, Options{Settings: staticProvider(s)})

	var out strings.Builder
	dispatch(t, i, lifecycle.PhasePageHeadRender, nil, screen.RequestContext{Locale: "fr", SectionName: "home", Position: 1}, &out)

	got := out.String()
	if strings.Count(got, "oboxads-v2.1-min.js") != 1 {
		t.Fatalf("loader missing or duplicated:\n%s", got)
	}
	if !strings.Contains(got, "OBOXADS.vars.site = 'example.org';") {
		t.Fatalf("settings not applied:\n%s", got)
	}
}

func TestActivateDeactivate(t *testing.T) {
	t.Parallel()

	i := newTestInstance(t, Options{})
	i.Activate(context.Background(), true)
	i.Deactivate(context.Background(), false)
	if _, ok := i.AdminScreenID(); ok {
		t.Fatal("activation hooks changed instance state")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	i := newTestInstance(t, Options{Slug: "s", Version: "2.0", AssetsBase: "https://cdn.example/p/"})
	if i.AssetsBase() != "https://cdn.example/p" {
		t.Fatalf("AssetsBase = %q", i.AssetsBase())
	}
	if i.Catalog().AdminStyle.Name != "s-admin-styles" || i.Catalog().AdminStyle.Version != "2.0" {
		t.Fatalf("catalog = %+v", i.Catalog().AdminStyle)
	}
	if i.Injector() == nil {
		t.Fatal("no injector")
	}
}

type staticProvider adconfig.Settings

func (s staticProvider) Current() adconfig.Settings { return adconfig.Settings(s) }
