package policy

import (
	"path"
	"strings"
)

// ExclusionDef lists infrastructure paths that bypass policy evaluation
// entirely: framework assets, auth callbacks and static files.
type ExclusionDef struct {
	Prefixes   []string `koanf:"prefixes" json:"prefixes"`
	Exact      []string `koanf:"exact" json:"exact"`
	Extensions []string `koanf:"extensions" json:"extensions"`
}

// DefaultExclusions mirrors the web app's middleware matcher.
func DefaultExclusions() ExclusionDef {
	return ExclusionDef{
		Prefixes: []string{"/_next", "/api/auth", "/static", "/images"},
		Exact:    []string{"/favicon.ico", "/robots.txt", "/sitemap.xml", "/manifest.webmanifest"},
		Extensions: []string{
			".js", ".css", ".map",
			".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".avif",
			".woff", ".woff2", ".ttf", ".otf",
			".txt",
		},
	}
}

// Exclusions is the compiled, read-only form of an ExclusionDef.
type Exclusions struct {
	prefixes []string
	exact    map[string]struct{}
	exts     map[string]struct{}
}

func NewExclusions(def ExclusionDef) *Exclusions {
	e := &Exclusions{
		exact: make(map[string]struct{}, len(def.Exact)),
		exts:  make(map[string]struct{}, len(def.Extensions)),
	}
	for _, p := range def.Prefixes {
		if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
			e.prefixes = append(e.prefixes, p)
		}
	}
	for _, p := range def.Exact {
		e.exact[strings.TrimSpace(p)] = struct{}{}
	}
	for _, ext := range def.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		e.exts[ext] = struct{}{}
	}
	return e
}

// Match reports whether p is an infrastructure path.
func (e *Exclusions) Match(p string) bool {
	if _, ok := e.exact[p]; ok {
		return true
	}
	for _, prefix := range e.prefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	if ext := strings.ToLower(path.Ext(p)); ext != "" {
		_, ok := e.exts[ext]
		return ok
	}
	return false
}
