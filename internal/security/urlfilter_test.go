package security

import (
	"errors"
	"testing"
)

func TestURLFilter_EmptyAllowsAll(t *testing.T) {
	t.Parallel()

	f := NewURLFilter(URLFilterConfig{})
	if err := f.Check("https://hooks.example.com/notify"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestURLFilter_AllowList(t *testing.T) {
	t.Parallel()

	f := NewURLFilter(URLFilterConfig{AllowDomains: []string{"example.com", " Hooks.Slack.com "}})

	tests := []struct {
		url     string
		allowed bool
	}{
		{"https://example.com/path", true},
		{"https://api.example.com/v1", true},
		{"https://hooks.slack.com/services/x", true},
		{"https://evil.com", false},
		{"https://notexample.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			err := f.Check(tt.url)
			if tt.allowed && err != nil {
				t.Errorf("expected allowed, got %v", err)
			}
			if !tt.allowed && !errors.Is(err, ErrURLBlocked) {
				t.Errorf("expected ErrURLBlocked, got %v", err)
			}
		})
	}
}

func TestURLFilter_DenyTakesPrecedence(t *testing.T) {
	t.Parallel()

	f := NewURLFilter(URLFilterConfig{
		AllowDomains: []string{"example.com"},
		DenyDomains:  []string{"internal.example.com"},
	})
	if err := f.Check("https://internal.example.com/x"); !errors.Is(err, ErrURLBlocked) {
		t.Errorf("expected deny, got %v", err)
	}
	if err := f.Check("https://public.example.com/x"); err != nil {
		t.Errorf("expected allow, got %v", err)
	}
}

func TestURLFilter_RejectsBadInput(t *testing.T) {
	t.Parallel()

	f := NewURLFilter(URLFilterConfig{})
	for _, raw := range []string{"://bad", "file:///etc/passwd", "gopher://example.com", "https://"} {
		if err := f.Check(raw); !errors.Is(err, ErrURLBlocked) {
			t.Errorf("Check(%q) = %v, want ErrURLBlocked", raw, err)
		}
	}
}

func TestMatchDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host, domain string
		want         bool
	}{
		{"example.com", "example.com", true},
		{"api.example.com", "example.com", true},
		{"notexample.com", "example.com", false},
		{"example.com", "api.example.com", false},
	}
	for _, tt := range tests {
		if got := matchDomain(tt.host, tt.domain); got != tt.want {
			t.Errorf("matchDomain(%q, %q) = %v, want %v", tt.host, tt.domain, got, tt.want)
		}
	}
}
