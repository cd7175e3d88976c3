package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Default paths.
const (
	DefaultLoginPath      = "/login"
	DefaultInternalPrefix = "/_gate"
)

// RouterConfig holds the collaborators and settings of the HTTP surface.
type RouterConfig struct {
	Issuer    SessionIssuer
	Verifier  SessionVerifier
	Resources ResourceChecker

	// Pages serves everything that is not an API route, including the
	// login page. When nil those requests get a 404.
	Pages http.Handler

	LoginPath            string
	InternalPrefix       string
	StaticAssetHeuristic bool
	SecureCookies        bool

	Logger *slog.Logger
}

// SetupRouter sets up the Gin router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.InternalPrefix == "" {
		cfg.InternalPrefix = DefaultInternalPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	router := gin.New()
	router.Use(RequestLogger(cfg.Logger), gin.Recovery(), SecurityHeaders())

	gate := NewAccessGate(
		cfg.Verifier,
		DefaultExemptions(cfg.LoginPath, cfg.InternalPrefix, cfg.StaticAssetHeuristic),
		cfg.LoginPath,
		cfg.Logger,
	)
	router.Use(gate.Middleware())

	// Create handlers
	handlers := NewAuthHandlers(cfg.Issuer, cfg.Resources, cfg.SecureCookies)

	api := router.Group("/api")
	{
		api.POST("/login", handlers.Login)
		api.POST("/check-password", handlers.CheckPassword)
		api.GET("/health", handlers.Health)
	}

	router.GET(cfg.InternalPrefix+"/health", handlers.Health)

	if cfg.Pages != nil {
		router.NoRoute(gin.WrapH(cfg.Pages))
	} else {
		router.NoRoute(func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
		})
	}

	return router
}
