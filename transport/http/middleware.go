package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SessionCookieName carries the signed session token.
const SessionCookieName = "session_token"

// GateDecisionKey is the gin context key holding the request's GateDecision.
const GateDecisionKey = "gateDecision"

// SessionVerifier authenticates a session token.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) bool
}

// GateDecision is the outcome of the access gate for one request.
type GateDecision int

const (
	GateUnchecked GateDecision = iota
	GateBypassed
	GateAllowed
	GateDenied
)

func (d GateDecision) String() string {
	switch d {
	case GateBypassed:
		return "bypassed"
	case GateAllowed:
		return "allowed"
	case GateDenied:
		return "denied"
	default:
		return "unchecked"
	}
}

// AccessGate enforces a valid session on every non-exempt path
type AccessGate struct {
	verifier   SessionVerifier
	exemptions Exemptions
	loginPath  string
	logger     *slog.Logger
}

// NewAccessGate creates the gate. Denied requests are redirected to loginPath.
func NewAccessGate(verifier SessionVerifier, exemptions Exemptions, loginPath string, logger *slog.Logger) *AccessGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessGate{
		verifier:   verifier,
		exemptions: exemptions,
		loginPath:  NormalizePath(loginPath),
		logger:     logger,
	}
}

// Decide evaluates a request. Any panic while evaluating is a denial.
func (g *AccessGate) Decide(r *http.Request) (decision GateDecision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			decision = GateDenied
			err = fmt.Errorf("access gate panic: %v", rec)
		}
	}()

	if g.exemptions.Exempt(r.URL.Path) {
		return GateBypassed, nil
	}

	// A missing cookie is an empty token.
	var token string
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		token = cookie.Value
	}

	if g.verifier.Verify(r.Context(), token) {
		return GateAllowed, nil
	}
	return GateDenied, nil
}

// Middleware returns the gate as a gin handler
func (g *AccessGate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := g.Decide(c.Request)
		if err != nil {
			g.logger.ErrorContext(c.Request.Context(), "access gate failed closed", "path", c.Request.URL.Path, "error", err)
		}

		c.Set(GateDecisionKey, decision)

		switch decision {
		case GateBypassed, GateAllowed:
			c.Next()
		default:
			g.logger.InfoContext(c.Request.Context(), "invalid or missing session, redirecting to login", "path", c.Request.URL.Path)
			c.Redirect(http.StatusTemporaryRedirect, g.loginPath)
			c.Abort()
		}
	}
}

// RequestLogger logs one line per request through slog.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.InfoContext(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// SecurityHeaders sets standard security response headers on every response.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if requestIsSecure(c.Request) {
			h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}

		c.Next()
	}
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
