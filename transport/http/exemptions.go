package http

import (
	"path"
	"strings"
)

// PathMatcher decides whether a normalized request path is exempt from
// the session check.
type PathMatcher interface {
	Match(p string) bool
}

// Prefix matches p itself and everything below it, on segment boundaries:
// Prefix("/api") matches "/api" and "/api/login" but not "/apiary".
type Prefix string

// Match implements PathMatcher.
func (m Prefix) Match(p string) bool {
	prefix := strings.TrimSuffix(string(m), "/")
	if prefix == "" {
		return false
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// StaticAsset matches paths whose final segment looks like a file name
// with an extension, such as "/favicon.ico". Dotfiles like "/.env" and
// names ending in a dot are not matched.
type StaticAsset struct{}

// Match implements PathMatcher.
func (StaticAsset) Match(p string) bool {
	last := path.Base(p)
	ext := path.Ext(last)
	return len(ext) > 1 && len(ext) < len(last)
}

// Exemptions is an ordered list of matchers. A path is exempt if any
// matcher accepts it.
type Exemptions []PathMatcher

// DefaultExemptions returns the login entry point, the gate's internal
// routes, the API and static assets.
func DefaultExemptions(loginPath, internalPrefix string, staticAssets bool) Exemptions {
	ex := Exemptions{
		Prefix(loginPath),
		Prefix(internalPrefix),
		Prefix("/api"),
	}
	if staticAssets {
		ex = append(ex, StaticAsset{})
	}
	return ex
}

// Exempt reports whether the normalized form of rawPath is exempt.
func (e Exemptions) Exempt(rawPath string) bool {
	p := NormalizePath(rawPath)
	for _, m := range e {
		if m.Match(p) {
			return true
		}
	}
	return false
}

// NormalizePath cleans rawPath into an absolute path without dot segments
// or a trailing slash.
func NormalizePath(rawPath string) string {
	if rawPath == "" {
		return "/"
	}
	return path.Clean("/" + rawPath)
}
