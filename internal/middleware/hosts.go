package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
)

// AllowedHostsConfig configures the host allowlist filter.
type AllowedHostsConfig struct {
	// Patterns are regular expressions matched at the start of the Host header.
	Patterns []string
	// DefaultDomain receives requests for hosts outside the allowlist.
	DefaultDomain string
	// Disabled allows every host. Test mode sets it.
	Disabled bool
	// ProxySSLHeader names the header a trusted TLS-terminating proxy sets;
	// requests carrying ProxySSLValue in it count as https. Empty trusts no
	// header.
	ProxySSLHeader string
	ProxySSLValue  string
	Logger         *slog.Logger
}

// AllowedHosts redirects requests for unknown hosts to the default domain and
// strips the trailing dot of fully qualified hosts.
type AllowedHosts struct {
	patterns      []*regexp.Regexp
	defaultDomain string
	disabled      bool
	proxyHeader   string
	proxyValue    string
	logger        *slog.Logger
}

// NewAllowedHosts compiles the configured patterns.
func NewAllowedHosts(cfg AllowedHostsConfig) (*AllowedHosts, error) {
	if !cfg.Disabled && cfg.DefaultDomain == "" {
		return nil, errors.New("middleware: allowed hosts needs a default domain")
	}
	a := &AllowedHosts{
		defaultDomain: cfg.DefaultDomain,
		disabled:      cfg.Disabled,
		proxyHeader:   cfg.ProxySSLHeader,
		proxyValue:    cfg.ProxySSLValue,
		logger:        cfg.Logger,
	}
	if a.proxyHeader != "" && a.proxyValue == "" {
		a.proxyValue = "https"
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	for _, pattern := range cfg.Patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		// Anchor at the start only, so "example\.com" also admits "example.com:8080".
		re, err := regexp.Compile(`^(?:` + pattern + `)`)
		if err != nil {
			return nil, fmt.Errorf("middleware: host pattern %q: %w", pattern, err)
		}
		a.patterns = append(a.patterns, re)
	}
	return a, nil
}

// Allowed reports whether host matches one of the patterns.
func (a *AllowedHosts) Allowed(host string) bool {
	if a.disabled {
		return true
	}
	for _, re := range a.patterns {
		if re.MatchString(host) {
			return true
		}
	}
	return false
}

// Handler wraps next with the allowlist check.
func (a *AllowedHosts) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		var target string
		switch {
		case !a.Allowed(host):
			target = a.scheme(r) + "://" + a.defaultDomain + r.URL.Path
			a.logger.Info("redirecting disallowed host", slog.String("host", host))
		case len(host) > 1 && strings.HasSuffix(host, "."):
			target = a.scheme(r) + "://" + strings.TrimSuffix(host, ".") + r.URL.Path
		}
		if target != "" {
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *AllowedHosts) scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if a.proxyHeader != "" && strings.EqualFold(r.Header.Get(a.proxyHeader), a.proxyValue) {
		return "https"
	}
	return "http"
}
