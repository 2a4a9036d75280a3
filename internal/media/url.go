package media

import "strings"

// ResolveURL turns a backend media path into an absolute URL. Values that
// already start with "http" are returned unchanged.
func ResolveURL(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http") {
		return path
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return path
	}
	return base + "/" + strings.TrimLeft(path, "/")
}
