package adconfig

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultSite          = "hollywoodpq.com"
	DefaultLocale        = "fr"
	DefaultSection       = "home"
	DefaultPosition      = 1
	DefaultContestCount  = 3
	DefaultLoaderHost    = "cdn.oboxads.com"
	DefaultLoaderPath    = "/oboxads/oboxads-v2.1-min.js"
	DefaultLoaderVersion = "6"
)

type Settings struct {
	Site         string `json:"site"`
	Locale       string `json:"locale"`
	Section      string `json:"section"`
	Position     int    `json:"position"`
	ContestCount int    `json:"contest_count"`
	// Custom is passed through verbatim as OBOXADS.vars.custom.
	Custom string `json:"custom"`

	LoaderHost    string `json:"loader_host"`
	LoaderPath    string `json:"loader_path"`
	LoaderVersion string `json:"loader_version"`
}

func Defaults() Settings {
	return Settings{
		Site:          DefaultSite,
		Locale:        DefaultLocale,
		Section:       DefaultSection,
		Position:      DefaultPosition,
		ContestCount:  DefaultContestCount,
		LoaderHost:    DefaultLoaderHost,
		LoaderPath:    DefaultLoaderPath,
		LoaderVersion: DefaultLoaderVersion,
	}
}

// WithDefaults fills every zero-valued field from Defaults. Custom and
// ContestCount are left alone since empty/zero are meaningful for them.
func (s Settings) WithDefaults() Settings {
	d := Defaults()
	if s.Site == "" {
		s.Site = d.Site
	}
	if s.Locale == "" {
		s.Locale = d.Locale
	}
	if s.Section == "" {
		s.Section = d.Section
	}
	if s.Position == 0 {
		s.Position = d.Position
	}
	if s.LoaderHost == "" {
		s.LoaderHost = d.LoaderHost
	}
	if s.LoaderPath == "" {
		s.LoaderPath = d.LoaderPath
	}
	if s.LoaderVersion == "" {
		s.LoaderVersion = d.LoaderVersion
	}
	return s
}

// LoaderURL is the protocol-relative loader script URL.
func (s Settings) LoaderURL() string {
	u := "//" + s.LoaderHost + s.LoaderPath
	if s.LoaderVersion != "" {
		u += "?ver=" + s.LoaderVersion
	}
	return u
}

// Validate reports every problem at once.
func (s Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Site) == "" {
		errs = append(errs, errors.New("site is required"))
	}
	if s.Position < 1 {
		errs = append(errs, fmt.Errorf("position must be >= 1, got %d", s.Position))
	}
	if s.ContestCount < 0 {
		errs = append(errs, fmt.Errorf("contest_count must be >= 0, got %d", s.ContestCount))
	}
	if s.LoaderHost == "" || strings.ContainsAny(s.LoaderHost, "/:?#\"' ") {
		errs = append(errs, fmt.Errorf("loader_host must be a bare host name, got %q", s.LoaderHost))
	}
	if !strings.HasPrefix(s.LoaderPath, "/") || strings.ContainsAny(s.LoaderPath, "?#\"' ") {
		errs = append(errs, fmt.Errorf("loader_path must be an absolute path, got %q", s.LoaderPath))
	}
	if strings.ContainsAny(s.LoaderVersion, "&#\"' ") {
		errs = append(errs, fmt.Errorf("loader_version contains invalid characters: %q", s.LoaderVersion))
	}
	return errors.Join(errs...)
}
