package screen

import (
	"maps"
	"strings"
)

const (
	DefaultSection  = "home"
	DefaultPosition = 1
)

// LocaleFilter is the override point for the request locale, called with the
// host locale and the module's translation domain. It must return the locale
// to use; returning "" keeps the empty value.
type LocaleFilter func(locale, domain string) string

type Options struct {
	// Domain is passed to the locale filter (the module slug).
	Domain       string
	LocaleFilter LocaleFilter
	// Matcher, when set, negotiates the locale from Accept-Language before
	// the filter runs.
	Matcher *LocaleMatcher

	DefaultSection  string
	DefaultPosition int
	// DeriveSectionFromPath enables /category/<name>/ section detection.
	DeriveSectionFromPath bool
}

type Resolver struct {
	opts Options
}

func NewResolver(opts Options) *Resolver {
	if opts.LocaleFilter == nil {
		opts.LocaleFilter = func(locale, _ string) string { return locale }
	}
	if opts.DefaultSection == "" {
		opts.DefaultSection = DefaultSection
	}
	if opts.DefaultPosition == 0 {
		opts.DefaultPosition = DefaultPosition
	}
	return &Resolver{opts: opts}
}

// Resolve builds the RequestContext for one lifecycle event.
func (r *Resolver) Resolve(st HostState) RequestContext {
	rc := RequestContext{
		IsAdminScreen: st.Admin,
		Locale:        r.Locale(st.Locale, st.AcceptLanguage),
		SectionName:   r.opts.DefaultSection,
		Position:      r.opts.DefaultPosition,
		PostID:        st.PostID,
		Server:        maps.Clone(st.Server),
	}
	// the screen id only means something inside the admin area
	if st.Admin && st.ScreenID != nil {
		id := *st.ScreenID
		rc.CurrentScreenID = &id
	}
	if r.opts.DeriveSectionFromPath {
		if section, ok := SectionFromPath(st.Path); ok {
			rc.SectionName = section
		}
	}
	return rc
}

// Locale applies negotiation (if configured) and then the locale filter.
// The filter is always called.
func (r *Resolver) Locale(hostLocale, acceptLanguage string) string {
	locale := strings.TrimSpace(hostLocale)
	if r.opts.Matcher != nil && acceptLanguage != "" {
		if negotiated, ok := r.opts.Matcher.Match(acceptLanguage); ok {
			locale = negotiated
		}
	}
	return r.opts.LocaleFilter(locale, r.opts.Domain)
}

// Domain returns the translation domain handed to the locale filter.
func (r *Resolver) Domain() string { return r.opts.Domain }

// SectionFromPath extracts <name> from /category/<name>/... paths.
func SectionFromPath(p string) (string, bool) {
	parts := strings.Split(p, "/")
	if len(parts) >= 3 && parts[1] == "category" && parts[2] != "" {
		return parts[2], true
	}
	return "", false
}
