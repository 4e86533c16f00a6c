package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/oboxads-web/internal/health"
	"github.com/keithlinneman/oboxads-web/internal/httpmw"
	"github.com/keithlinneman/oboxads-web/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe
	// SettingsInfo adds X-Ad-Settings-Source/X-Ad-Settings-Hash. Pass a nil
	// interface, not a typed nil, to disable.
	SettingsInfo httpmw.SettingsInfo
	ClientIPOpts httpmw.ClientIPOptions
	// AdHosts are allowed by the content security policy (loader CDN, host
	// libraries).
	AdHosts []string
	// APIRoutes registers extra routes ahead of the page host.
	APIRoutes func(chi.Router)
	// SiteHandler serves everything else (public pages, admin, bundles).
	SiteHandler http.Handler
}
