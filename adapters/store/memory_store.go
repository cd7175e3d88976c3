package store

import (
	"sort"

	"github.com/awnumar/memguard"
	"github.com/layer-3/demogate/core"
	"github.com/layer-3/demogate/ports"
)

// MemoryStore is an immutable, in-memory implementation of the
// CredentialStore interface. Secrets are sealed in memguard enclaves.
type MemoryStore struct {
	secrets map[string]*EnclaveSecret
}

// NewMemoryStore creates a store from scope -> secret pairs. Entries with an
// empty secret are dropped so that they can never be satisfied.
func NewMemoryStore(secrets map[string]string) *MemoryStore {
	s := &MemoryStore{secrets: make(map[string]*EnclaveSecret, len(secrets))}
	for scope, value := range secrets {
		if sec := NewEnclaveSecret(value); sec != nil {
			s.secrets[scope] = sec
		}
	}
	return s
}

// Lookup returns the secret configured for scope
func (s *MemoryStore) Lookup(scope string) (ports.Secret, bool) {
	sec, ok := s.secrets[scope]
	if !ok {
		return nil, false
	}
	return sec, true
}

// Scopes lists the configured scopes in sorted order.
func (s *MemoryStore) Scopes() []string {
	scopes := make([]string, 0, len(s.secrets))
	for scope := range s.secrets {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes
}

// EnclaveSecret is a Secret sealed in a memguard enclave.
type EnclaveSecret struct {
	enclave *memguard.Enclave
}

// NewEnclaveSecret seals value. It returns nil for an empty value.
func NewEnclaveSecret(value string) *EnclaveSecret {
	if value == "" {
		return nil
	}
	// NewEnclave wipes its input, so hand it a private copy.
	return &EnclaveSecret{enclave: memguard.NewEnclave([]byte(value))}
}

// Equal reports whether candidate matches the sealed value.
func (e *EnclaveSecret) Equal(candidate string) bool {
	if e == nil || e.enclave == nil || candidate == "" {
		return false
	}
	buf, err := e.enclave.Open()
	if err != nil {
		return false
	}
	defer buf.Destroy()
	return buf.EqualTo([]byte(candidate))
}

// Use opens the enclave for the duration of fn. A nil secret reports
// core.ErrNotConfigured without calling fn.
func (e *EnclaveSecret) Use(fn func(raw []byte) error) error {
	if e == nil || e.enclave == nil {
		return core.ErrNotConfigured
	}
	buf, err := e.enclave.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}
