package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// IsSafeURLPath rejects request paths the host should never map onto a
// filesystem: NUL bytes, backslashes, "..", and dot segments.
func IsSafeURLPath(p string) bool {
	if strings.ContainsAny(p, "\x00\\") || strings.Contains(p, "..") {
		return false
	}
	return !HasDotSegments(p)
}
