package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keithlinneman/oboxads-web/internal/adconfig"
	"github.com/keithlinneman/oboxads-web/internal/cfg"
	"github.com/keithlinneman/oboxads-web/internal/cryptoutil"
	"github.com/keithlinneman/oboxads-web/internal/health"
	"github.com/keithlinneman/oboxads-web/internal/host"
	"github.com/keithlinneman/oboxads-web/internal/httpmw"
	"github.com/keithlinneman/oboxads-web/internal/httpserver"
	"github.com/keithlinneman/oboxads-web/internal/log"
	"github.com/keithlinneman/oboxads-web/internal/metrics"
	"github.com/keithlinneman/oboxads-web/internal/opshttp"
	"github.com/keithlinneman/oboxads-web/internal/otelx"
	"github.com/keithlinneman/oboxads-web/internal/plugin"
	"github.com/keithlinneman/oboxads-web/internal/prof"
	"github.com/keithlinneman/oboxads-web/internal/ratelimit"
	"github.com/keithlinneman/oboxads-web/internal/screen"
	"github.com/keithlinneman/oboxads-web/internal/statushttp"
	v "github.com/keithlinneman/oboxads-web/internal/version"
	"github.com/keithlinneman/oboxads-web/internal/webassets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildID, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Validate already checked both levels
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildID,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"ops_port", conf.OpsPort,
		"plugin_version", conf.PluginVersion,
		"site_dir", conf.SiteDir,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"enable_settings_updates", conf.EnableSettingsUpdates,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"settings_ssm_param", conf.SettingsSSMParam,
		"settings_s3_bucket", conf.SettingsS3Bucket,
		"settings_s3_prefix", conf.SettingsS3Prefix,
		"settings_signing_key_arn", conf.SettingsSigningKeyARN,
	)

	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":            v.AppName,
			"component":      "server",
			"version":        vi.Version,
			"commit":         vi.Commit,
			"module_slug":    plugin.DefaultSlug,
			"module_version": conf.PluginVersion,
		},
	})
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// only ever exporting to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
		Attributes: []attribute.KeyValue{
			attribute.String("module.slug", plugin.DefaultSlug),
			attribute.String("module.version", conf.PluginVersion),
		},
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	// ad settings: flags first, then the published document if enabled
	settings := adconfig.NewManager()
	settings.Set(adconfig.Snapshot{Settings: conf.AdSettings(), Source: adconfig.SourceFlags})

	if conf.EnableSettingsUpdates {
		startSettingsUpdates(ctx, L, conf, settings, m)
	}
	m.SetSettingsSource(string(settings.Source()))
	m.SetSettingsInfo(settings.Hash(), settings.Current().Site)
	m.SetSettingsLoadedTimestamp(settings.LoadedAt())

	mod, err := plugin.GetInstance(plugin.Options{
		Version:  conf.PluginVersion,
		Settings: settings,
		Logger:   L,
		Metrics:  m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to initialize module")
		os.Exit(1)
	}
	mod.Activate(ctx, conf.NetworkWide)

	var matcher *screen.LocaleMatcher
	if locales := conf.Locales(); len(locales) > 0 {
		matcher, err = screen.NewLocaleMatcher(locales...)
		if err != nil {
			L.Error(ctx, err, "invalid ad locales")
			os.Exit(1)
		}
	}
	resolver := screen.NewResolver(screen.Options{
		Domain:                mod.Slug(),
		Matcher:               matcher,
		DefaultSection:        conf.AdSection,
		DefaultPosition:       conf.AdPosition,
		DeriveSectionFromPath: conf.AdDeriveSection,
	})

	siteFS, err := siteFiles(conf.SiteDir)
	if err != nil {
		L.Error(ctx, err, "no site to serve", "site_dir", conf.SiteDir)
		os.Exit(1)
	}

	siteHandler, err := host.New(&host.Options{
		Logger:     L,
		Module:     mod,
		Resolver:   resolver,
		Settings:   settings,
		Metrics:    m,
		SiteFS:     siteFS,
		FallbackFS: webassets.FallbackFS(),
		BundleFS:   webassets.BundleFS(),
		ServerInfo: conf.AdServerInfo,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create page host")
		os.Exit(1)
	}

	var gate health.ShutdownGate
	var maxAge time.Duration
	if conf.EnableSettingsUpdates {
		maxAge = 10 * conf.SettingsPollInterval
	}
	readiness := health.All(gate.Probe(), health.Settings(settings, maxAge, nil))

	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
		ratelimit.WithExempt(func(r *http.Request) bool { return httpmw.IsStaticAsset(r.URL.Path) }),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		// only the first denial per visitor entry is logged
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
	)
	var rateLimitMW func(http.Handler) http.Handler
	if conf.RateLimitRPS > 0 {
		rateLimitMW = limiter.Middleware
	}

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  rateLimitMW,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		SettingsInfo: settings,
		AdHosts:      []string{settings.Current().LoaderHost, jqueryHost},
		SiteHandler:  siteHandler,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// the ops listener is for internal monitoring only; opshttp also rejects
	// public peers in case the security group is ever misconfigured
	status := statushttp.NewAPI(settings, mod, vi, L)
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.OpsPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		Status:       status.Handler(),
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// worst case systemd kills us after its start timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	stop()

	L.Info(context.Background(), "shutdown signal received")
	gate.Set("draining")
	mod.Deactivate(context.Background(), conf.NetworkWide)

	L.Info(context.Background(), "draining for in-flight requests and load balancer health checks", "drain", drainPeriod.String())
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "site http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

const (
	drainPeriod = 30 * time.Second
	jqueryHost  = "code.jquery.com"
)

// startSettingsUpdates loads the published settings document once and then
// keeps polling for new ones. Failures keep the flag settings in place.
func startSettingsUpdates(ctx context.Context, L log.Logger, conf cfg.App, settings *adconfig.Manager, m *metrics.ServerMetrics) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		L.Error(ctx, err, "failed to load AWS config, settings updates disabled")
		return
	}

	var verifier adconfig.SignatureVerifier
	if conf.SettingsSigningKeyARN != "" {
		verifier = cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), conf.SettingsSigningKeyARN)
	}

	loader, err := adconfig.NewLoader(ctx, adconfig.LoaderOptions{
		Logger:   L,
		SSMParam: conf.SettingsSSMParam,
		S3Bucket: conf.SettingsS3Bucket,
		S3Prefix: conf.SettingsS3Prefix,
		KMSKeyID: conf.SettingsSigningKeyARN,
		SSM:      ssm.NewFromConfig(awsCfg),
		S3:       s3.NewFromConfig(awsCfg),
		Verifier: verifier,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create settings loader, settings updates disabled")
		return
	}

	if err := loader.LoadIntoManager(ctx, settings); err != nil {
		m.IncSettingsError("initial_load")
		L.Error(ctx, err, "failed to load published ad settings, keeping flag values")
	} else {
		L.Info(ctx, "loaded published ad settings",
			"settings_hash", settings.Hash(),
			"site", settings.Current().Site,
		)
	}

	watcher := adconfig.NewWatcher(adconfig.WatcherOptions{
		Logger:       L,
		Fetcher:      loader,
		Manager:      settings,
		PollInterval: conf.SettingsPollInterval,
		Metrics:      m,
		OnSwap: func(hash string, s adconfig.Settings) {
			m.SetSettingsSource(string(adconfig.SourceS3))
			m.SetSettingsInfo(hash, s.Site)
			m.SetSettingsLoadedTimestamp(time.Now())
		},
	})
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			L.Error(ctx, err, "settings watcher stopped")
		}
	}()
}

func siteFiles(dir string) (fs.FS, error) {
	if dir != "" {
		fsys := os.DirFS(dir)
		if _, err := fs.Stat(fsys, "index.html"); err != nil {
			return nil, fmt.Errorf("site dir %s: %w", dir, err)
		}
		return fsys, nil
	}
	seed, ok := webassets.SeedSiteFS()
	if !ok {
		return nil, fmt.Errorf("embedded seed site has no index.html")
	}
	return seed, nil
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when the unit is Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
