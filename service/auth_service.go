package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/demogate/core"
	"github.com/layer-3/demogate/ports"
	"github.com/thejerf/abtime"
)

// AuthService issues and verifies master session tokens
type AuthService struct {
	tokenizer   ports.Tokenizer
	credentials ports.CredentialStore
	eventPub    ports.EventPublisher

	clock      abtime.AbstractTime
	logger     *slog.Logger
	sessionTTL time.Duration
}

// Option configures the services in this package.
type Option func(*options)

type options struct {
	clock  abtime.AbstractTime
	logger *slog.Logger
}

// WithClock sets the time source used for issuing and expiring sessions.
func WithClock(clock abtime.AbstractTime) Option {
	return func(o *options) { o.clock = clock }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = abtime.NewRealTime()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	credentials ports.CredentialStore,
	eventPub ports.EventPublisher,
	opts ...Option,
) *AuthService {
	o := buildOptions(opts)
	return &AuthService{
		tokenizer:   tokenizer,
		credentials: credentials,
		eventPub:    eventPub,
		clock:       o.clock,
		logger:      o.logger,
		sessionTTL:  core.SessionLifetime,
	}
}

// Configured reports whether both the master secret and the signing key
// are present.
func (s *AuthService) Configured() bool {
	_, master := s.credentials.Lookup(core.ScopeSession)
	_, signing := s.credentials.Lookup(core.ScopeSigning)
	return master && signing
}

// Login checks candidate against the master secret and, on a match, mints
// a session and its signed token.
func (s *AuthService) Login(ctx context.Context, candidate string) (*core.Session, string, error) {
	if !s.Configured() {
		s.logger.ErrorContext(ctx, "login rejected: server secrets are not configured")
		return nil, "", core.ErrNotConfigured
	}
	master, _ := s.credentials.Lookup(core.ScopeSession)

	if !master.Equal(candidate) {
		s.logger.InfoContext(ctx, "incorrect password attempt")
		return nil, "", core.ErrUnauthorized
	}

	// Token timestamps have second precision; keep the session in step.
	now := s.clock.Now().Truncate(time.Second)
	session := &core.Session{
		ID:        uuid.New().String(),
		Subject:   core.SessionSubject,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session token: %w", err)
	}

	if err := s.eventPub.PublishSessionIssued(ctx, session); err != nil {
		// The session is valid without the notification.
		s.logger.WarnContext(ctx, "failed to publish session event", "session_id", session.ID, "error", err)
	}

	s.logger.InfoContext(ctx, "login successful", "session_id", session.ID, "expires_at", session.ExpiresAt)
	return session, token, nil
}

// ValidateSessionToken parses and validates a session token at the current
// time. Every failure wraps core.ErrInvalidToken, core.ErrTokenExpired or
// core.ErrNotConfigured.
func (s *AuthService) ValidateSessionToken(ctx context.Context, token string) (*core.Session, error) {
	if token == "" {
		return nil, core.ErrInvalidToken
	}

	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	// Check if the token has expired
	if !session.Valid(s.clock.Now()) {
		return nil, core.ErrTokenExpired
	}

	if session.Subject != core.SessionSubject {
		return nil, fmt.Errorf("unexpected subject %q: %w", session.Subject, core.ErrInvalidToken)
	}

	return session, nil
}

// Verify collapses ValidateSessionToken into a single boolean. The cause of
// a failure is logged, never returned.
func (s *AuthService) Verify(ctx context.Context, token string) bool {
	if _, err := s.ValidateSessionToken(ctx, token); err != nil {
		s.logger.DebugContext(ctx, "session verification failed", "error", err)
		return false
	}
	return true
}
