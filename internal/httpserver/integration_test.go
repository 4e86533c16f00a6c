package httpserver_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/keithlinneman/oboxads-web/internal/adconfig"
	"github.com/keithlinneman/oboxads-web/internal/health"
	"github.com/keithlinneman/oboxads-web/internal/host"
	"github.com/keithlinneman/oboxads-web/internal/httpserver"
	"github.com/keithlinneman/oboxads-web/internal/log"
	"github.com/keithlinneman/oboxads-web/internal/metrics"
	"github.com/keithlinneman/oboxads-web/internal/plugin"
	"github.com/keithlinneman/oboxads-web/internal/ratelimit"
	"github.com/keithlinneman/oboxads-web/internal/screen"
	"github.com/keithlinneman/oboxads-web/internal/webassets"
)

// TestIntegration_FullStack wires the public handler to the reference host,
// a real module instance and the embedded site, then checks pages, admin and
// bundles end to end through every middleware layer.
func TestIntegration_FullStack(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	settings := adconfig.NewManager()
	s := adconfig.Defaults()
	s.Site = "example.com"
	settings.Set(adconfig.Snapshot{Settings: s, Source: adconfig.SourceFlags, LoadedAt: time.Now()})

	mod, err := plugin.New(plugin.Options{Settings: settings, Metrics: m})
	if err != nil {
		t.Fatalf("plugin.New: %v", err)
	}
	siteFS, ok := webassets.SeedSiteFS()
	if !ok {
		t.Fatal("seed site missing")
	}
	hst, err := host.New(&host.Options{
		Logger:     log.Nop(),
		Module:     mod,
		Resolver:   screen.NewResolver(screen.Options{Domain: mod.Slug()}),
		Settings:   settings,
		Metrics:    m,
		SiteFS:     siteFS,
		FallbackFS: webassets.FallbackFS(),
		BundleFS:   webassets.BundleFS(),
	})
	if err != nil {
		t.Fatalf("host.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	lim := ratelimit.New(ctx, ratelimit.WithRate(1000, 1000))

	handler := httpserver.NewHandler(&httpserver.Options{
		Logger:       log.Nop(),
		UseRecoverMW: true,
		MetricsMW:    m.Middleware,
		RateLimitMW:  lim.Middleware,
		Readiness:    health.Settings(settings, 0, nil),
		SettingsInfo: settings,
		AdHosts:      []string{adconfig.DefaultLoaderHost, "code.jquery.com"},
		SiteHandler:  hst,
	})

	get := func(t *testing.T, path string) *httptest.ResponseRecorder {
		t.Helper()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		return rec
	}

	t.Run("home page carries snippet and bundles", func(t *testing.T) {
		rec := get(t, "/")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		body, _ := io.ReadAll(rec.Body)
		for _, want := range []string{
			"OBOXADS.vars.site = 'example.com';",
			"OBOXADS.vars.lang = 'fr';",
			"/wp-content/plugins/" + plugin.DefaultSlug + "/js/public.js?ver=1.0.0",
			host.JQueryURL,
			"HollywoodPQ",
		} {
			if !strings.Contains(string(body), want) {
				t.Errorf("body missing %q", want)
			}
		}
		if got := rec.Header().Get("X-Ad-Settings-Source"); got != "flags" {
			t.Errorf("X-Ad-Settings-Source = %q", got)
		}
		csp := rec.Header().Get("Content-Security-Policy")
		if !strings.Contains(csp, "https://code.jquery.com") || !strings.Contains(csp, "https://cdn.oboxads.com") {
			t.Errorf("CSP = %s", csp)
		}
	})

	t.Run("bundle file served", func(t *testing.T) {
		rec := get(t, "/wp-content/plugins/"+plugin.DefaultSlug+"/css/public.css?ver=1.0.0")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), ".oboxads") {
			t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("admin page", func(t *testing.T) {
		rec := get(t, host.AdminPath+"?page="+plugin.DefaultSlug)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "example.com") {
			t.Error("admin page does not show the active site")
		}
		if id, ok := mod.AdminScreenID(); !ok || id != host.AdminScreenPrefix+plugin.DefaultSlug {
			t.Errorf("AdminScreenID = %q, %v", id, ok)
		}
	})

	t.Run("404 keeps security headers and the snippet", func(t *testing.T) {
		rec := get(t, "/does-not-exist/")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
		if rec.Header().Get("Strict-Transport-Security") == "" {
			t.Error("HSTS missing on 404")
		}
		if !strings.Contains(rec.Body.String(), "OBOXADS.fn.init();") {
			t.Error("snippet missing on 404 page")
		}
	})

	t.Run("ready reflects loaded settings", func(t *testing.T) {
		if rec := get(t, "/-/ready"); rec.Code != http.StatusOK {
			t.Fatalf("ready = %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("rejects POST", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", http.NoBody))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rec.Code)
		}
	})

	t.Run("metrics recorded", func(t *testing.T) {
		get(t, "/about/")
		n, err := testutil.GatherAndCount(m.Registry(), "lifecycle_phase_duration_seconds")
		if err != nil {
			t.Fatal(err)
		}
		if n == 0 {
			t.Error("no lifecycle phase observations")
		}
	})
}
