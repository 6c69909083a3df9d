package security

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrURLBlocked is returned when a URL is denied by the filter.
var ErrURLBlocked = errors.New("URL blocked by filter")

// URLFilterConfig restricts where outbound deliveries may be sent.
type URLFilterConfig struct {
	// AllowDomains is the list of allowed domains. When empty every host is
	// allowed unless denied. Subdomains are matched: allowing "example.com"
	// also allows "api.example.com".
	AllowDomains []string `yaml:"allow_domains"`

	// DenyDomains takes precedence over AllowDomains.
	DenyDomains []string `yaml:"deny_domains"`
}

// URLFilter checks outbound URLs against allow and deny domain lists.
type URLFilter struct {
	allow []string
	deny  []string
}

// NewURLFilter creates a URL filter from the given config.
func NewURLFilter(cfg URLFilterConfig) *URLFilter {
	return &URLFilter{allow: normalizeDomains(cfg.AllowDomains), deny: normalizeDomains(cfg.DenyDomains)}
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Check returns nil if rawURL is an http(s) URL whose host passes the
// filter, or an error wrapping ErrURLBlocked.
func (f *URLFilter) Check(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %w", ErrURLBlocked, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not allowed", ErrURLBlocked, parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty hostname", ErrURLBlocked)
	}

	for _, d := range f.deny {
		if matchDomain(host, d) {
			return fmt.Errorf("%w: %s (denied)", ErrURLBlocked, host)
		}
	}

	if len(f.allow) == 0 {
		return nil
	}
	for _, a := range f.allow {
		if matchDomain(host, a) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (not in allow list)", ErrURLBlocked, host)
}

// matchDomain checks if host matches domain or is a subdomain of it.
// "api.example.com" matches "example.com"; "notexample.com" does not.
func matchDomain(host, domain string) bool {
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}
