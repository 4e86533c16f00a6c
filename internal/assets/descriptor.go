// Package assets describes the module's style and script bundles and the
// registration records handed to the host when a bundle is activated.
package assets

import (
	"net/url"
	"slices"
	"strings"
)

type Kind string

const (
	KindStyle  Kind = "style"
	KindScript Kind = "script"
)

// Descriptor is an immutable description of one loadable bundle. Copy it
// freely; Dependencies is cloned on every accessor that hands it out.
type Descriptor struct {
	Name         string
	Kind         Kind
	RelativePath string
	Dependencies []string
	Version      string
}

// URL joins base and the relative path and appends the cache-busting version.
// The result depends only on base, RelativePath and Version.
func (d Descriptor) URL(base string) string {
	u := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(d.RelativePath, "/")
	if d.Version != "" {
		u += "?ver=" + url.QueryEscape(d.Version)
	}
	return u
}

// Registration is what the host's resource-registration interface receives.
type Registration struct {
	Bundle string
	Kind   Kind
	URL    string
	Deps   []string
}

func (d Descriptor) Registration(base string) Registration {
	return Registration{
		Bundle: d.Name,
		Kind:   d.Kind,
		URL:    d.URL(base),
		Deps:   slices.Clone(d.Dependencies),
	}
}

// Registrar is implemented by the host. Enqueue may be called more than once
// for the same bundle; deduplication is the host's job.
type Registrar interface {
	Enqueue(reg Registration)
}
