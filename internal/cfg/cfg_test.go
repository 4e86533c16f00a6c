package cfg

import (
	"flag"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"
)

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// newTestConfig returns a pointer so later FillFromEnv calls on fs are
// visible through it.
func newTestConfig(t *testing.T, args []string) (*App, *flag.FlagSet) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := &App{}
	Register(fs, c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return c, fs
}

func TestRegister_Defaults(t *testing.T) {
	c, _ := newTestConfig(t, nil)

	if !c.LogJSON || c.LogLevel != "info" || c.StacktraceLevel != "error" {
		t.Errorf("log defaults = %v %q %q", c.LogJSON, c.LogLevel, c.StacktraceLevel)
	}
	if c.HTTPPort != 8080 || c.OpsPort != 9000 {
		t.Errorf("ports = %d/%d", c.HTTPPort, c.OpsPort)
	}
	if c.PluginVersion != "1.0.0" {
		t.Errorf("PluginVersion = %q", c.PluginVersion)
	}
	if c.AdSection != "home" || c.AdLocale != "fr" || c.AdPosition != 1 {
		t.Errorf("ad defaults = section %q locale %q position %d", c.AdSection, c.AdLocale, c.AdPosition)
	}
	if c.AdSite != "hollywoodpq.com" || c.AdContestCount != 3 {
		t.Errorf("ad site defaults = %q %d", c.AdSite, c.AdContestCount)
	}
	if c.EnableSettingsUpdates || c.AdDeriveSection || c.AdServerInfo {
		t.Error("optional features enabled by default")
	}
	if c.SettingsPollInterval != 30*time.Second {
		t.Errorf("SettingsPollInterval = %s", c.SettingsPollInterval)
	}
	if err := Validate(*c); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestAdSettings_FromFlags(t *testing.T) {
	c, _ := newTestConfig(t, []string{
		"-ad-site=example.org",
		"-ad-locale=en",
		"-ad-section=news",
		"-ad-position=2",
		"-ad-contest-count=0",
		"-ad-loader-version=7",
	})
	s := c.AdSettings()
	if s.Site != "example.org" || s.Locale != "en" || s.Section != "news" || s.Position != 2 || s.ContestCount != 0 {
		t.Fatalf("AdSettings = %+v", s)
	}
	if s.LoaderURL() != "//cdn.oboxads.com/oboxads/oboxads-v2.1-min.js?ver=7" {
		t.Fatalf("LoaderURL = %q", s.LoaderURL())
	}
}

func TestLocales(t *testing.T) {
	c, _ := newTestConfig(t, []string{"-ad-locales= fr, en ,,de"})
	if got := c.Locales(); !slices.Equal(got, []string{"fr", "en", "de"}) {
		t.Fatalf("Locales = %v", got)
	}
	c, _ = newTestConfig(t, nil)
	if got := c.Locales(); got != nil {
		t.Fatalf("empty Locales = %v", got)
	}
}

func TestFillFromEnv(t *testing.T) {
	t.Setenv("OBOXADS_HTTP_PORT", "8181")
	t.Setenv("OBOXADS_AD_SECTION", "sport")
	t.Setenv("OBOXADS_LOG_LEVEL", "debug")
	t.Setenv("OBOXADS_AD_POSITION", "not-a-number")

	c, fs := newTestConfig(t, []string{"-log-level=warn"})

	var logs []string
	FillFromEnv(fs, EnvPrefix, func(format string, args ...any) {
		logs = append(logs, fmt.Sprintf(format, args...))
	})

	if c.HTTPPort != 8181 {
		t.Errorf("HTTPPort = %d, want env value", c.HTTPPort)
	}
	if c.AdSection != "sport" {
		t.Errorf("AdSection = %q, want env value", c.AdSection)
	}
	if c.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, cli should beat env", c.LogLevel)
	}
	if c.AdPosition != 1 {
		t.Errorf("AdPosition = %d, invalid env should keep default", c.AdPosition)
	}

	joined := strings.Join(logs, "\n")
	if !strings.Contains(joined, "overrides env OBOXADS_LOG_LEVEL") {
		t.Errorf("missing override log: %s", joined)
	}
	if !strings.Contains(joined, "ignoring invalid env OBOXADS_AD_POSITION") {
		t.Errorf("missing invalid env log: %s", joined)
	}
}

func TestFillFromEnv_NilLogf(t *testing.T) {
	t.Setenv("OBOXADS_AD_POSITION", "bad")
	_, fs := newTestConfig(t, nil)
	FillFromEnv(fs, EnvPrefix, nil)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"http port", []string{"-http-port=0"}, "HTTP_PORT"},
		{"ops port", []string{"-ops-port=70000"}, "OPS_PORT"},
		{"same ports", []string{"-http-port=9000"}, "must differ"},
		{"log level", []string{"-log-level=loud"}, "LOG_LEVEL"},
		{"stacktrace level", []string{"-stacktrace-level=x"}, "STACKTRACE_LEVEL"},
		{"error links", []string{"-max-error-links=0"}, "MAX_ERROR_LINKS"},
		{"trace sample", []string{"-trace-sample=1.5"}, "TRACE_SAMPLE"},
		{"tracing endpoint", []string{"-enable-tracing"}, "OTLP_ENDPOINT required"},
		{"tracing endpoint format", []string{"-enable-tracing", "-otlp-endpoint=collector"}, "host:port"},
		{"pyroscope server", []string{"-enable-pyroscope", "-pyro-tenant=t"}, "PYRO_SERVER"},
		{"pyroscope tenant", []string{"-enable-pyroscope", "-pyro-server=http://p:4040"}, "PYRO_TENANT"},
		{"rate limit", []string{"-rate-limit-rps=-1"}, "RATE_LIMIT_RPS"},
		{"burst", []string{"-rate-limit-burst=0"}, "RATE_LIMIT_BURST"},
		{"plugin version", []string{"-plugin-version= "}, "PLUGIN_VERSION"},
		{"ad position", []string{"-ad-position=0"}, "position must be >= 1"},
		{"ad loader host", []string{"-ad-loader-host=https://x"}, "loader_host"},
		{"settings bucket", []string{"-enable-settings-updates"}, "SETTINGS_S3_BUCKET"},
		{"settings poll", []string{"-enable-settings-updates", "-settings-s3-bucket=b", "-settings-poll-interval=10ms"}, "SETTINGS_POLL_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestConfig(t, tt.args)
			wantErrContains(t, Validate(*c), tt.want)
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	c, _ := newTestConfig(t, []string{"-http-port=0", "-log-level=nope", "-trace-sample=2"})
	err := Validate(*c)
	for _, sub := range []string{"HTTP_PORT", "LOG_LEVEL", "TRACE_SAMPLE"} {
		wantErrContains(t, err, sub)
	}
}

func TestValidate_SettingsUpdatesOK(t *testing.T) {
	c, _ := newTestConfig(t, []string{"-enable-settings-updates", "-settings-s3-bucket=b"})
	if err := Validate(*c); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
