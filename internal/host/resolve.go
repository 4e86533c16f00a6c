package host

import (
	"io/fs"
	"path"
	"strings"

	"github.com/keithlinneman/oboxads-web/internal/pathutil"
)

// resolvePath maps a URL path to a file in fsys. A non-empty redirectTo means
// the caller should redirect to the canonical trailing-slash URL.
func resolvePath(urlPath string, fsys fs.FS) (file string, redirectTo string, ok bool) {
	p := urlPath
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !pathutil.IsSafeURLPath(p) {
		return "", "", false
	}

	trailingSlash := strings.HasSuffix(p, "/")
	clean := path.Clean(p)
	if trailingSlash && clean != "/" {
		clean += "/"
	}

	switch {
	case clean == "/":
		return found(fsys, "index.html")
	case strings.HasSuffix(clean, "/"):
		return found(fsys, strings.TrimPrefix(clean, "/")+"index.html")
	case path.Ext(clean) != "":
		return found(fsys, strings.TrimPrefix(clean, "/"))
	}

	// /about -> /about/ when about/index.html exists
	if existsFile(fsys, strings.TrimPrefix(clean, "/")+"/index.html") {
		return "", clean + "/", true
	}
	return "", "", false
}

func found(fsys fs.FS, name string) (string, string, bool) {
	if existsFile(fsys, name) {
		return name, "", true
	}
	return "", "", false
}

func existsFile(fsys fs.FS, name string) bool {
	if fsys == nil || name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func isHTML(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".html" || ext == ".htm"
}

func cacheControlForFile(name string, o *Options) string {
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".html", ".htm", "":
		return o.HTMLCacheControl
	case ".css", ".js", ".mjs",
		".png", ".jpg", ".jpeg", ".webp", ".gif", ".svg", ".ico",
		".woff", ".woff2", ".ttf", ".eot",
		".map":
		return o.AssetCacheControl
	default:
		return o.OtherCacheControl
	}
}
