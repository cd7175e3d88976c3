package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/awnumar/memguard"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/layer-3/demogate/adapters/events"
	"github.com/layer-3/demogate/adapters/store"
	"github.com/layer-3/demogate/adapters/tokenizer"
	"github.com/layer-3/demogate/config"
	"github.com/layer-3/demogate/core"
	"github.com/layer-3/demogate/ports"
	"github.com/layer-3/demogate/service"
	transport "github.com/layer-3/demogate/transport/http"
)

var (
	listenAddr string
	pagesDir   string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the gate in front of the demo pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if listenAddr != "" {
			cfg.Listen = listenAddr
		}

		var eventPub ports.EventPublisher = events.NopPublisher{}

		if cfg.Redis.URL != "" {
			opts, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				return fmt.Errorf("failed to parse Redis URL: %w", err)
			}
			redisClient := redis.NewClient(opts)
			defer redisClient.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			secrets, err := store.NewRedisSecretSource(redisClient, cfg.Redis.SecretsKey).Load(ctx)
			cancel()
			if err != nil {
				return err
			}
			if skipped := cfg.MergeResources(secrets); len(skipped) > 0 {
				logger.Warn("ignoring reserved or empty scope ids in Redis secrets hash", "scopes", skipped)
			}

			if cfg.Events.Enabled {
				publisher, err := redisstream.NewPublisher(
					redisstream.PublisherConfig{
						Client: redisClient,
					},
					watermill.NewSlogLogger(logger),
				)
				if err != nil {
					return fmt.Errorf("failed to create Redis publisher: %w", err)
				}
				defer publisher.Close()
				eventPub = events.NewWatermillPublisher(publisher, cfg.Events.Topic)
			}
		}

		logger.Info("configuration loaded", "config", cfg)
		if cfg.Secrets.Session == "" || cfg.Secrets.Signing == "" {
			logger.Error("site secrets are not fully configured; every login will fail")
		}

		credentials := store.NewMemoryStore(cfg.CredentialSecrets(core.ScopeSession, core.ScopeSigning))

		defer memguard.Purge()

		signKey, _ := credentials.Lookup(core.ScopeSigning)
		tok := tokenizer.NewJWTTokenizer(signKey, nil)

		authService := service.NewAuthService(tok, credentials, eventPub, service.WithLogger(logger))
		resourceService := service.NewResourceService(credentials, service.WithLogger(logger))

		if cfg.Production() {
			gin.SetMode(gin.ReleaseMode)
		}

		var pages http.Handler
		if pagesDir != "" {
			pages = http.FileServer(http.Dir(pagesDir))
		}

		router := transport.SetupRouter(transport.RouterConfig{
			Issuer:               authService,
			Verifier:             authService,
			Resources:            resourceService,
			Pages:                pages,
			LoginPath:            cfg.LoginPath,
			InternalPrefix:       cfg.InternalPrefix,
			StaticAssetHeuristic: cfg.StaticAssetHeuristic,
			SecureCookies:        cfg.Production(),
			Logger:               logger,
		})

		server := &http.Server{
			Addr:              cfg.Listen,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		logger.Info("server started", "listen", cfg.Listen)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Address to listen on (overrides config)")
	serverCmd.Flags().StringVar(&pagesDir, "pages-dir", "", "Directory of pages served behind the gate")
}
