package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/demogate/core"
)

// SessionIssuer logs in with the master secret.
type SessionIssuer interface {
	Configured() bool
	Login(ctx context.Context, candidate string) (*core.Session, string, error)
}

// ResourceChecker checks a per-resource password.
type ResourceChecker interface {
	CheckResourceSecret(ctx context.Context, scope, presented string) (bool, error)
}

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	issuer        SessionIssuer
	resources     ResourceChecker
	secureCookies bool
}

// NewAuthHandlers creates new auth handlers. When secureCookies is set the
// session cookie is always marked Secure; otherwise only over HTTPS.
func NewAuthHandlers(issuer SessionIssuer, resources ResourceChecker, secureCookies bool) *AuthHandlers {
	return &AuthHandlers{
		issuer:        issuer,
		resources:     resources,
		secureCookies: secureCookies,
	}
}

// Login handles the master password login
func (h *AuthHandlers) Login(c *gin.Context) {
	if !h.issuer.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error"})
		return
	}

	var req struct {
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required"})
		return
	}

	session, token, err := h.issuer.Login(c.Request.Context(), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		case errors.Is(err, core.ErrNotConfigured):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		}
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(session.ExpiresAt.Sub(session.IssuedAt) / time.Second),
		HttpOnly: true,
		Secure:   h.secureCookies || requestIsSecure(c.Request),
		SameSite: http.SameSiteStrictMode,
	})

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CheckPassword handles a per-resource password check
func (h *AuthHandlers) CheckPassword(c *gin.Context) {
	var req struct {
		DemoID   string `json:"demoId" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	authorized, err := h.resources.CheckResourceSecret(c.Request.Context(), req.DemoID, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrBadRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	if !authorized {
		// Same body for unknown demos and wrong passwords.
		c.JSON(http.StatusUnauthorized, gin.H{"authorized": false, "error": "Invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"authorized": true})
}

// Health reports that the process is serving
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
