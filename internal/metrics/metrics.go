// Package metrics owns the Prometheus registry: HTTP server metrics, page
// lifecycle dispatch, bundle activations and the ad settings watcher.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/oboxads-web/internal/version"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec

	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter
	profilingActive        prometheus.Gauge

	phaseDur            *prometheus.HistogramVec
	callbackPanicsTotal *prometheus.CounterVec
	activationsTotal    *prometheus.CounterVec
	adminScreen         prometheus.Gauge
	missingDepsTotal    *prometheus.CounterVec

	settingsSource   *prometheus.GaugeVec
	settingsInfo     *prometheus.GaugeVec
	settingsLoadedTs prometheus.Gauge

	settingsPollsTotal  prometheus.Counter
	settingsSwapsTotal  prometheus.Counter
	settingsErrorsTotal *prometheus.CounterVec
	settingsLoadDur     prometheus.Histogram
	settingsLastSuccess prometheus.Gauge
	settingsStale       prometheus.Gauge
}

// New returns a fresh registry with the Go/process collectors and every
// server metric registered. HTTP labels are limited to method, route and
// status.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered HTTP handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times the rate limiter hit its tracked-client capacity",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		phaseDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifecycle_phase_duration_seconds",
			Help:    "Time spent running the callbacks bound to a lifecycle phase",
			Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
		}, []string{"phase"}),
		callbackPanicsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_callback_panics_total",
			Help: "Recovered lifecycle callback panics by phase and callback",
		}, []string{"phase", "callback"}),
		activationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resource_activations_total",
			Help: "Style/script bundle activations by bundle name",
		}, []string{"bundle"}),
		adminScreen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "admin_screen_registered",
			Help: "Whether the module's admin screen has been registered (1) or not (0)",
		}),
		missingDepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resource_missing_dependencies_total",
			Help: "Bundle dependencies the host could not resolve, by dependency name",
		}, []string{"dependency"}),
		settingsSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ad_settings_source_info",
			Help: "Current ad settings source (label carries value, gauge is always 1)",
		}, []string{"source"}),
		settingsInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ad_settings_info",
			Help: "Currently active ad settings document (label carries identity, value is always 1)",
		}, []string{"sha256", "site"}),
		settingsLoadedTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ad_settings_loaded_timestamp_seconds",
			Help: "Unix timestamp of when the current ad settings were loaded",
		}),
		settingsPollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ad_settings_watcher_polls_total",
			Help: "Total number of settings watcher poll cycles",
		}),
		settingsSwapsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ad_settings_watcher_swaps_total",
			Help: "Total number of successful ad settings swaps",
		}),
		settingsErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ad_settings_watcher_errors_total",
			Help: "Total settings watcher errors by type",
		}, []string{"type"}),
		settingsLoadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ad_settings_load_duration_seconds",
			Help:    "Time to download and verify an ad settings document",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		settingsLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ad_settings_watcher_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful SSM poll",
		}),
		settingsStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ad_settings_watcher_stale",
			Help: "Whether the settings watcher is stale (1) or healthy (0)",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.profilingActive,
		m.phaseDur,
		m.callbackPanicsTotal,
		m.activationsTotal,
		m.adminScreen,
		m.missingDepsTotal,
		m.settingsSource,
		m.settingsInfo,
		m.settingsLoadedTs,
		m.settingsPollsTotal,
		m.settingsSwapsTotal,
		m.settingsErrorsTotal,
		m.settingsLoadDur,
		m.settingsLastSuccess,
		m.settingsStale,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// Registry is exposed for tests and extra collectors.
func (m *ServerMetrics) Registry() *prometheus.Registry { return m.reg }

func (m *ServerMetrics) IncHttpPanic() { m.httpPanicTotal.Inc() }

// SetBuildInfoFromVersion is called once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildID,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied()   { m.ratelimitDeniedTotal.Inc() }
func (m *ServerMetrics) IncRateLimitCapacity() { m.ratelimitCapacityTotal.Inc() }

func (m *ServerMetrics) SetProfilingActive(active bool) { m.profilingActive.Set(boolGauge(active)) }

// lifecycle

func (m *ServerMetrics) ObservePhase(phase string, seconds float64) {
	m.phaseDur.WithLabelValues(phase).Observe(seconds)
}

func (m *ServerMetrics) IncCallbackPanic(phase, callback string) {
	m.callbackPanicsTotal.WithLabelValues(phase, callback).Inc()
}

func (m *ServerMetrics) IncResourceActivation(bundle string) {
	m.activationsTotal.WithLabelValues(bundle).Inc()
}

func (m *ServerMetrics) SetAdminScreenRegistered(registered bool) {
	m.adminScreen.Set(boolGauge(registered))
}

func (m *ServerMetrics) IncMissingDependency(dep string) {
	m.missingDepsTotal.WithLabelValues(dep).Inc()
}

// ad settings

func (m *ServerMetrics) SetSettingsSource(source string) {
	m.settingsSource.Reset()
	m.settingsSource.WithLabelValues(source).Set(1)
}

func (m *ServerMetrics) SetSettingsInfo(sha256, site string) {
	m.settingsInfo.Reset()
	m.settingsInfo.WithLabelValues(sha256, site).Set(1)
}

func (m *ServerMetrics) SetSettingsLoadedTimestamp(t time.Time) {
	m.settingsLoadedTs.Set(float64(t.Unix()))
}

func (m *ServerMetrics) IncSettingsPolls() { m.settingsPollsTotal.Inc() }
func (m *ServerMetrics) IncSettingsSwaps() { m.settingsSwapsTotal.Inc() }
func (m *ServerMetrics) IncSettingsError(errType string) {
	m.settingsErrorsTotal.WithLabelValues(errType).Inc()
}

func (m *ServerMetrics) ObserveSettingsLoadDuration(seconds float64) {
	m.settingsLoadDur.Observe(seconds)
}

func (m *ServerMetrics) SetSettingsLastSuccess(unixSeconds float64) {
	m.settingsLastSuccess.Set(unixSeconds)
}

func (m *ServerMetrics) SetSettingsStale(stale bool) { m.settingsStale.Set(boolGauge(stale)) }

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
