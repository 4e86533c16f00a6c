// Package webassets embeds what the reference host serves when nothing is
// configured on disk: a seed public site, fallback error pages, and the
// module's own style and script bundles.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed fallback seed plugin
var embedded embed.FS

func sub(dir string) fs.FS {
	s, err := fs.Sub(embedded, dir)
	if err != nil {
		panic(fmt.Errorf("webassets: %s subfs: %w", dir, err))
	}
	return s
}

// FallbackFS holds 404.html and 500.html.
func FallbackFS() fs.FS { return sub("fallback") }

// BundleFS is rooted at the module directory, so paths match the bundle
// descriptors' relative paths (css/admin.css, js/public.js, ...).
func BundleFS() fs.FS { return sub("plugin") }

// SeedSiteFS returns (fs, true) only if seed looks like a real site (has
// index.html).
func SeedSiteFS() (fs.FS, bool) {
	s := sub("seed")
	if _, err := fs.Stat(s, "index.html"); err != nil {
		return nil, false
	}
	return s, true
}
