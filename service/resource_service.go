package service

import (
	"context"
	"log/slog"

	"github.com/layer-3/demogate/core"
	"github.com/layer-3/demogate/ports"
)

// ResourceService checks per-resource secondary passwords. It neither
// issues nor consults sessions.
type ResourceService struct {
	credentials ports.CredentialStore
	logger      *slog.Logger
}

// NewResourceService creates a new resource password checker
func NewResourceService(credentials ports.CredentialStore, opts ...Option) *ResourceService {
	o := buildOptions(opts)
	return &ResourceService{
		credentials: credentials,
		logger:      o.logger,
	}
}

// CheckResourceSecret reports whether presented is the secret configured
// for scope. Unknown scopes, reserved scopes and wrong secrets all yield
// false. Missing input yields core.ErrBadRequest.
func (s *ResourceService) CheckResourceSecret(ctx context.Context, scope, presented string) (bool, error) {
	if scope == "" || presented == "" {
		return false, core.ErrBadRequest
	}

	authorized := false
	if !core.IsReservedScope(scope) {
		if secret, ok := s.credentials.Lookup(scope); ok {
			authorized = secret.Equal(presented)
		}
	}

	s.logger.InfoContext(ctx, "resource password check", "scope", scope, "authorized", authorized)
	return authorized, nil
}
