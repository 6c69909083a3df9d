// Package security provides credential tracking, log redaction, audit
// logging, rate limiting of trigger authentication and outbound URL
// filtering.
package security

import (
	"cmp"
	"slices"
	"strings"
	"sync"
)

// MinSecretLen is the shortest credential value treated as a redaction
// literal. Anything shorter would blank out ordinary words in log lines.
const MinSecretLen = 4

// CredentialStore holds the secrets sitterd knows about at runtime: the cron
// secret, database DSNs and webhook tokens. Modules record theirs during
// Provision under a "<module>.<field>" name.
type CredentialStore struct {
	mu       sync.RWMutex
	creds    map[string]string
	onChange []func(*CredentialStore)
}

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]string)}
}

// Set records a credential, trimming surrounding whitespace so values read
// from files behave like inline ones. Subscribers registered with OnChange
// run after the store is updated, outside its lock.
func (s *CredentialStore) Set(name, value string) {
	value = strings.TrimSpace(value)

	s.mu.Lock()
	if old, ok := s.creds[name]; ok && old == value {
		s.mu.Unlock()
		return
	}
	s.creds[name] = value
	subs := slices.Clone(s.onChange)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// Get returns the credential value and whether it was set.
func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.creds[name]
	return v, ok
}

// Names returns the credential names in sorted order.
func (s *CredentialStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Values returns the distinct values worth redacting, longest first, so a
// DSN is replaced whole before any password it contains.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	values := make([]string, 0, len(s.creds))
	for _, v := range s.creds {
		if len(v) >= MinSecretLen {
			values = append(values, v)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(values, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return slices.Compact(values)
}

// Len returns the number of stored credentials.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}

// OnChange registers fn to run after every Set that changes a value.
func (s *CredentialStore) OnChange(fn func(*CredentialStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}
