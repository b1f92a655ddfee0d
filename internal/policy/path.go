package policy

import (
	"path"
	"strings"
)

// Locales is the set of locale segments stripped from request paths before
// matching. Keys are lower case.
type Locales map[string]struct{}

func NewLocales(list []string) Locales {
	l := make(Locales, len(list))
	for _, s := range list {
		if s = strings.ToLower(strings.Trim(s, "/ ")); s != "" {
			l[s] = struct{}{}
		}
	}
	return l
}

// Strip removes a leading locale segment: /de/dashboard becomes /dashboard
// and /de becomes /.
func (l Locales) Strip(p string) string {
	if len(l) == 0 {
		return p
	}
	first, rest, _ := strings.Cut(strings.TrimPrefix(p, "/"), "/")
	if _, ok := l[strings.ToLower(first)]; !ok {
		return p
	}
	return "/" + rest
}

// NormalizePath cleans p for matching: one leading slash, no repeated
// slashes, no dot segments, no trailing slash.
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// NormalizeRequestPath is the path every enforcement and advisory check
// matches against.
func NormalizeRequestPath(p string, locales Locales) string {
	return locales.Strip(NormalizePath(p))
}
