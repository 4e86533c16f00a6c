// Package cfg is the server's flag/env configuration. Every option is a flag
// with an inline default; FillFromEnv lets OBOXADS_* environment variables
// supply anything not given on the command line.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/oboxads-web/internal/adconfig"
	"github.com/keithlinneman/oboxads-web/internal/log"
)

// EnvPrefix is prepended to the upper-cased flag name, e.g. -http-port reads
// OBOXADS_HTTP_PORT.
const EnvPrefix = "OBOXADS_"

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort int
	OpsPort  int

	EnablePprof     bool
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string

	RateLimitRPS   float64
	RateLimitBurst int

	// public site
	SiteDir       string
	PluginVersion string
	NetworkWide   bool

	// ad snippet defaults
	AdSite          string
	AdLocale        string
	AdSection       string
	AdPosition      int
	AdContestCount  int
	AdCustom        string
	AdLoaderHost    string
	AdLoaderVersion string
	AdDeriveSection bool
	AdServerInfo    bool
	AdLocales       string

	// runtime settings from SSM/S3
	EnableSettingsUpdates bool
	SettingsSSMParam      string
	SettingsS3Bucket      string
	SettingsS3Prefix      string
	SettingsSigningKeyARN string
	SettingsPollInterval  time.Duration
}

// Register binds all config fields to fs with their defaults.
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error chain links in log records")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "public listen TCP port (1..65535)")
	fs.IntVar(&c.OpsPort, "ops-port", 9000, "ops listen TCP port for metrics/health/pprof (1..65535)")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof handlers (ops port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing profiles to -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")

	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 20, "per-client request rate on the public port (0 disables)")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 40, "per-client burst on the public port")

	fs.StringVar(&c.SiteDir, "site-dir", "", "directory of public pages to serve (empty uses the embedded seed site)")
	fs.StringVar(&c.PluginVersion, "plugin-version", "1.0.0", "module version used for bundle cache busting")
	fs.BoolVar(&c.NetworkWide, "network-wide", false, "activate the module network-wide")

	fs.StringVar(&c.AdSite, "ad-site", adconfig.DefaultSite, "ad network site id")
	fs.StringVar(&c.AdLocale, "ad-locale", adconfig.DefaultLocale, "default page locale")
	fs.StringVar(&c.AdSection, "ad-section", adconfig.DefaultSection, "default page section")
	fs.IntVar(&c.AdPosition, "ad-position", adconfig.DefaultPosition, "ad position ordinal (>= 1)")
	fs.IntVar(&c.AdContestCount, "ad-contest-count", adconfig.DefaultContestCount, "ad network contest count")
	fs.StringVar(&c.AdCustom, "ad-custom", "", "value for OBOXADS.vars.custom")
	fs.StringVar(&c.AdLoaderHost, "ad-loader-host", adconfig.DefaultLoaderHost, "host serving the ad loader script")
	fs.StringVar(&c.AdLoaderVersion, "ad-loader-version", adconfig.DefaultLoaderVersion, "ad loader script version")
	fs.BoolVar(&c.AdDeriveSection, "ad-derive-section", false, "derive the section from /category/<name>/ paths")
	fs.BoolVar(&c.AdServerInfo, "ad-server-info", false, "include request metadata in the snippet's diagnostic comment")
	fs.StringVar(&c.AdLocales, "ad-locales", "", "comma-separated locales to negotiate from Accept-Language (empty disables)")

	fs.BoolVar(&c.EnableSettingsUpdates, "enable-settings-updates", false, "Load and refresh ad settings from SSM/S3")
	fs.StringVar(&c.SettingsSSMParam, "settings-ssm-param", "/app/oboxads-web/settings/current", "ssm parameter holding the settings document sha256")
	fs.StringVar(&c.SettingsS3Bucket, "settings-s3-bucket", "", "s3 bucket holding settings documents")
	fs.StringVar(&c.SettingsS3Prefix, "settings-s3-prefix", "apps/oboxads-web/settings", "s3 prefix (key) for settings documents")
	fs.StringVar(&c.SettingsSigningKeyARN, "settings-signing-key-arn", "", "KMS key ARN for settings signature verification (empty skips)")
	fs.DurationVar(&c.SettingsPollInterval, "settings-poll-interval", adconfig.DefaultPollInterval, "how often to poll SSM for new settings")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from the
// environment. Flag "foo-bar" maps to PREFIX_FOO_BAR. Precedence is
// cli > env > default; invalid env values are reported and ignored.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// AdSettings returns the ad settings described by the flags.
func (c App) AdSettings() adconfig.Settings {
	return adconfig.Settings{
		Site:          c.AdSite,
		Locale:        c.AdLocale,
		Section:       c.AdSection,
		Position:      c.AdPosition,
		ContestCount:  c.AdContestCount,
		Custom:        c.AdCustom,
		LoaderHost:    c.AdLoaderHost,
		LoaderPath:    adconfig.DefaultLoaderPath,
		LoaderVersion: c.AdLoaderVersion,
	}
}

// Locales splits AdLocales into trimmed, non-empty entries.
func (c App) Locales() []string {
	var out []string
	for _, l := range strings.Split(c.AdLocales, ",") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Validate returns every invalid field joined into one error.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.OpsPort < 1 || c.OpsPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid OPS_PORT %d (must be 1..65535)", c.OpsPort))
	}
	if c.OpsPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("OPS_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL: %w", err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}
	if c.EnablePyroscope {
		if u, err := url.Parse(c.PyroServer); c.PyroServer == "" || err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL when ENABLE_PYROSCOPE=true (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, errors.New("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be >= 0 (got %v)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be >= 1 (got %d)", c.RateLimitBurst))
	}

	if strings.TrimSpace(c.PluginVersion) == "" {
		errs = append(errs, errors.New("PLUGIN_VERSION is required"))
	}
	if err := c.AdSettings().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid ad settings: %w", err))
	}

	if c.EnableSettingsUpdates {
		if c.SettingsSSMParam == "" {
			errs = append(errs, errors.New("SETTINGS_SSM_PARAM is required when ENABLE_SETTINGS_UPDATES=true"))
		}
		if c.SettingsS3Bucket == "" {
			errs = append(errs, errors.New("SETTINGS_S3_BUCKET is required when ENABLE_SETTINGS_UPDATES=true"))
		}
		if c.SettingsPollInterval < time.Second {
			errs = append(errs, fmt.Errorf("SETTINGS_POLL_INTERVAL must be >= 1s (got %s)", c.SettingsPollInterval))
		}
	}

	return errors.Join(errs...)
}
