package ports

// Secret is a configured credential value. Implementations keep the raw
// bytes out of reach of callers except for the duration of Use.
type Secret interface {
	// Equal reports, in constant time, whether candidate matches the secret.
	Equal(candidate string) bool
	// Use calls fn with the raw secret bytes. The slice is invalid after fn returns.
	Use(fn func(raw []byte) error) error
}

// CredentialStore maps a scope to its configured secret. It is populated
// once at startup and never modified afterwards.
type CredentialStore interface {
	// Lookup returns the secret for scope. Absent and empty secrets both
	// report false.
	Lookup(scope string) (Secret, bool)
}
