package adconfig

import (
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	t.Parallel()

	d := Defaults()
	if d.Site != "hollywoodpq.com" || d.Locale != "fr" || d.Section != "home" ||
		d.Position != 1 || d.ContestCount != 3 {
		t.Fatalf("Defaults() = %+v", d)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if got, want := d.LoaderURL(), "//cdn.oboxads.com/oboxads/oboxads-v2.1-min.js?ver=6"; got != want {
		t.Fatalf("LoaderURL = %q, want %q", got, want)
	}
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()

	s := Settings{Site: "example.org", ContestCount: 0, Custom: ""}.WithDefaults()
	if s.Site != "example.org" {
		t.Errorf("Site overwritten: %q", s.Site)
	}
	if s.Locale != DefaultLocale || s.Section != DefaultSection || s.Position != DefaultPosition {
		t.Errorf("defaults not filled: %+v", s)
	}
	if s.ContestCount != 0 {
		t.Errorf("ContestCount = %d, want 0 kept", s.ContestCount)
	}
	if s.LoaderHost != DefaultLoaderHost || s.LoaderPath != DefaultLoaderPath || s.LoaderVersion != DefaultLoaderVersion {
		t.Errorf("loader defaults not filled: %+v", s)
	}
}

func TestLoaderURL_NoVersion(t *testing.T) {
	t.Parallel()

	s := Settings{LoaderHost: "cdn.example", LoaderPath: "/a.js"}
	if got := s.LoaderURL(); got != "//cdn.example/a.js" {
		t.Fatalf("LoaderURL = %q", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantSub string
	}{
		{"empty site", func(s *Settings) { s.Site = " " }, "site is required"},
		{"zero position", func(s *Settings) { s.Position = 0 }, "position must be >= 1"},
		{"negative contests", func(s *Settings) { s.ContestCount = -1 }, "contest_count"},
		{"host with scheme", func(s *Settings) { s.LoaderHost = "https://cdn" }, "loader_host"},
		{"host with quote", func(s *Settings) { s.LoaderHost = "cdn'x" }, "loader_host"},
		{"relative path", func(s *Settings) { s.LoaderPath = "a.js" }, "loader_path"},
		{"version injection", func(s *Settings) { s.LoaderVersion = "6'" }, "loader_version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(&s)
			err := s.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()

	err := Settings{}.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, sub := range []string{"site", "position", "loader_host", "loader_path"} {
		if !strings.Contains(err.Error(), sub) {
			t.Errorf("joined error missing %q: %v", sub, err)
		}
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	s, err := Decode([]byte(`{"site":"example.org","contest_count":5,"custom":"k=v"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.Site != "example.org" || s.ContestCount != 5 || s.Custom != "k=v" || s.Locale != "fr" {
		t.Fatalf("Decode = %+v", s)
	}

	if _, err := Decode([]byte(`{"site":"x","bogus":1}`)); err == nil {
		t.Fatal("unknown field accepted")
	}
	if _, err := Decode([]byte(`{"site":"x","position":-2}`)); err == nil {
		t.Fatal("invalid settings accepted")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("garbage accepted")
	}
}
