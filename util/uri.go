package util

import (
	"net/url"
	"path/filepath"
	"strings"
)

// PathToURI converts a file path to a file:// URI, making it absolute first.
func PathToURI(path string) string {
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// URIToPath converts a file:// URI back to a local path. Anything that is not
// a file URI is returned unchanged.
func URIToPath(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		return filepath.FromSlash(u.Path)
	}
	return filepath.FromSlash(strings.TrimPrefix(uri, "file://"))
}

// PathFragment returns the last two path elements of a URI joined by "-",
// without the file extension. It is used to name build artifacts.
func PathFragment(uri string) string {
	p := filepath.ToSlash(URIToPath(uri))
	p = strings.TrimSuffix(p, filepath.Ext(p))
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return SanitizeName(strings.Join(parts, "-"))
}

// SanitizeName replaces characters that are unsafe in file names.
func SanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
