package httpmw

import (
	"path"
	"strings"
)

// IsStaticAsset reports whether p names a bundle or image file. Those
// requests are neither traced nor access logged.
func IsStaticAsset(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico", ".woff", ".woff2", ".map":
		return true
	}
	return false
}

// IsProbePath reports whether p is one of the health endpoints.
func IsProbePath(p string) bool {
	return p == "/-/healthy" || p == "/-/ready"
}
