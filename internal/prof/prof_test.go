package prof

import (
	"context"
	"testing"

	"github.com/keithlinneman/oboxads-web/internal/log"
)

func TestStart_Disabled(t *testing.T) {
	stop, err := Start(context.Background(), Options{Enabled: false, ServerAddress: "ignored"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if stop == nil {
		t.Fatal("stop is nil")
	}
	stop()
	stop()
}

func TestStart_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no server", Options{Enabled: true, AppName: "oboxads-web"}},
		{"no app", Options{Enabled: true, ServerAddress: "http://pyroscope:4040"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := log.WithContext(context.Background(), log.Nop())
			stop, err := Start(ctx, tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if stop == nil {
				t.Fatal("stop must be non-nil on error")
			}
			stop()
		})
	}
}

func TestOptions_Config(t *testing.T) {
	tags := map[string]string{"module": "oboxmedia-wordpress-plugin"}
	cfg, err := Options{
		AppName:       "oboxads-web",
		ServerAddress: "http://pyroscope:4040",
		TenantID:      "t1",
		Tags:          tags,
	}.config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.ApplicationName != "oboxads-web" || cfg.TenantID != "t1" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.ProfileTypes) != len(profileTypes) {
		t.Fatalf("profile types = %d", len(cfg.ProfileTypes))
	}
	tags["module"] = "changed"
	if cfg.Tags["module"] != "oboxmedia-wordpress-plugin" {
		t.Fatal("tags not copied")
	}
}
