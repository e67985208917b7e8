package agent

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// DomainGuard decides which URLs the agent may open. A guard without
// patterns allows everything.
type DomainGuard struct {
	patterns []glob.Glob
	raw      []string
}

// NewDomainGuard compiles host patterns such as "example.com" or
// "*.example.com". A scheme prefix is ignored. "*.example.com" also matches
// example.com itself.
func NewDomainGuard(patterns []string) (*DomainGuard, error) {
	g := &DomainGuard{}
	for _, p := range patterns {
		host := normalizePattern(p)
		if host == "" {
			continue
		}
		compiled, err := glob.Compile(host)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed domain pattern '%s': %w", p, err)
		}
		g.patterns = append(g.patterns, compiled)
		g.raw = append(g.raw, host)

		if bare, ok := strings.CutPrefix(host, "*."); ok {
			g.patterns = append(g.patterns, glob.MustCompile(glob.QuoteMeta(bare)))
		}
	}
	return g, nil
}

// Restricted reports whether the guard has any patterns.
func (g *DomainGuard) Restricted() bool {
	return g != nil && len(g.patterns) > 0
}

// Allowed reports whether rawURL may be opened. about:blank is always
// allowed; other non-http(s) URLs are rejected once patterns are set.
func (g *DomainGuard) Allowed(rawURL string) bool {
	if !g.Restricted() {
		return true
	}
	if rawURL == "about:blank" {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range g.patterns {
		if p.Match(host) {
			return true
		}
	}
	return false
}

// Patterns returns the normalized host patterns.
func (g *DomainGuard) Patterns() []string {
	if g == nil {
		return nil
	}
	return g.raw
}

func normalizePattern(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if i := strings.Index(p, "://"); i >= 0 {
		p = p[i+3:]
	}
	if i := strings.IndexAny(p, "/?#"); i >= 0 {
		p = p[:i]
	}
	if host, _, ok := strings.Cut(p, ":"); ok {
		p = host
	}
	return p
}
