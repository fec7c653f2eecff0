package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/smorand/google-slides-deckbuilder/internal/auth"
	"github.com/smorand/google-slides-deckbuilder/internal/cache"
	"github.com/smorand/google-slides-deckbuilder/internal/catalog"
	"github.com/smorand/google-slides-deckbuilder/internal/config"
	"github.com/smorand/google-slides-deckbuilder/internal/events"
	"github.com/smorand/google-slides-deckbuilder/internal/generator"
	"github.com/smorand/google-slides-deckbuilder/internal/logo"
	"github.com/smorand/google-slides-deckbuilder/internal/middleware"
	"github.com/smorand/google-slides-deckbuilder/internal/notify"
	"github.com/smorand/google-slides-deckbuilder/internal/permissions"
	"github.com/smorand/google-slides-deckbuilder/internal/ratelimit"
	"github.com/smorand/google-slides-deckbuilder/internal/remote"
	"github.com/smorand/google-slides-deckbuilder/internal/retry"
	"github.com/smorand/google-slides-deckbuilder/internal/transport"
)

const registryCleanupInterval = time.Minute

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the deck builder HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/deckbuilder.yaml", "path to the YAML configuration")
	return cmd
}

func runServe(ctx context.Context, configPath string, logOutput io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, logOutput)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	oauthConfig, err := loadOAuthConfig(ctx, cfg)
	if err != nil {
		return err
	}

	store, err := newSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	caches := cache.NewManager(cacheConfig(cfg, logger))
	defer caches.Stop()

	oauthHandler := auth.NewOAuthHandler(*oauthConfig, logger)
	oauthHandler.SetOnTokenFunc(auth.NewSessionCallback(auth.SessionCallbackConfig{
		Store:    store,
		Profiles: auth.GoogleProfileFetcher{},
		Logger:   logger,
	}))

	sessions := middleware.NewSession(middleware.SessionConfig{
		Store:          store,
		Tokens:         caches.Tokens,
		TokenSource:    oauthHandler.TokenSource,
		UpdateLastUsed: true,
		Logger:         logger,
	})

	hub := events.NewHub(events.HubConfig{Logger: logger})
	registry := generator.NewRegistry(generator.RegistryConfig{
		TTL: cfg.Generation.RegistryTTL,
		OnRelease: func(gen *generator.Generation) {
			hub.Forget(gen.ID)
		},
		Logger: logger,
	})

	// Generations outlive their HTTP request but not the process.
	baseCtx, cancelGenerations := context.WithCancel(context.Background())
	defer cancelGenerations()

	api := transport.NewAPI(transport.APIConfig{
		Teams: cfg,
		Catalog: catalog.NewLoader(catalog.Config{
			Timeout: cfg.Catalog.Timeout,
			Logger:  logger,
		}),
		Logos: logo.NewFinder(logo.Config{
			Endpoint: cfg.Logo.Endpoint,
			Timeout:  cfg.Logo.Timeout,
			Cache:    caches.Logos,
			Logger:   logger,
		}),
		Folders: permissions.NewChecker(permissions.CheckerConfig{
			Cache:  caches.Folders,
			Logger: logger,
		}, permissions.NewRealDriveServiceFactory()),
		Services: newServiceFactory(cfg, logger),
		Registry: registry,
		Hub:      hub,
		Streamer: events.NewStreamer(hub, events.StreamConfig{
			CheckOrigin: originChecker(cfg.Server.AllowedOrigins),
			Logger:      logger,
		}),
		Notifier: notify.NewGateway(notify.Config{
			Icon:   cfg.Notifications.Icon,
			Logger: logger,
		}, hub),
		Generation: cfg.Generation,
		Tickets:    auth.NewTicketStore(auth.TicketStoreConfig{Logger: logger}),
		LogoLimiter: ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.Logo.RequestsPerSecond,
			BurstSize:         cfg.Logo.Burst,
			Logger:            logger,
		}),
		Tokens:      caches.Tokens,
		BaseContext: baseCtx,
		Logger:      logger,
	})

	server := transport.NewServer(transport.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		Logger:          logger,
	}, oauthHandler, sessions, api)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(registryCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := registry.Cleanup(); n > 0 {
					logger.Debug("expired generations dropped", slog.Int("count", n))
				}
			}
		}
	})

	err = g.Wait()
	cancelGenerations()
	caches.LogStats()
	return err
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// loadOAuthConfig returns the OAuth client, reading the named values from
// Secret Manager when configured.
func loadOAuthConfig(ctx context.Context, cfg *config.Config) (*auth.OAuthConfig, error) {
	base := auth.OAuthConfig{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURI:  cfg.OAuth.RedirectURI,
		Scopes:       auth.DefaultScopes,
	}
	if !cfg.OAuth.UsesSecretManager() {
		return &base, nil
	}

	loader, err := auth.NewSecretLoader(ctx, cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	defer loader.Close()

	return loader.LoadOAuthConfig(ctx, cfg.OAuth.Secrets, base)
}

func newSessionStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.SessionStore, error) {
	if cfg.Sessions.FirestoreCollection != "" {
		store, err := auth.NewFirestoreSessionStore(ctx, cfg.ProjectID, cfg.Sessions.FirestoreCollection)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		logger.Info("using Firestore sessions",
			slog.String("project_id", cfg.ProjectID),
			slog.String("collection", cfg.Sessions.FirestoreCollection),
		)
		return store, nil
	}

	logger.Warn("using in-memory sessions; sign-ins are lost on restart")
	return auth.NewMemorySessionStore(auth.MemoryStoreConfig{
		MaxSessions: cfg.Sessions.MaxSessions,
		SessionTTL:  cfg.Sessions.TTL,
		Logger:      logger,
	}), nil
}

func cacheConfig(cfg *config.Config, logger *slog.Logger) cache.ManagerConfig {
	mc := cache.DefaultManagerConfig()
	mc.LogoConfig.TTL = cfg.Logo.CacheTTL
	mc.LogoConfig.Logger = logger
	mc.TokenConfig.Logger = logger
	mc.FolderConfig.Logger = logger
	mc.Logger = logger
	return mc
}

func newServiceFactory(cfg *config.Config, logger *slog.Logger) transport.ServiceFactory {
	driveFactory := remote.NewRealDriveAPIFactory()
	slidesFactory := remote.NewRealSlidesAPIFactory()
	serviceConfig := remote.Config{
		Retry: retry.Config{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
		},
		Logger: logger,
	}

	return func(tokenSource oauth2.TokenSource) remote.Service {
		return remote.NewGoogleService(serviceConfig, tokenSource, driveFactory, slidesFactory)
	}
}

// originChecker accepts same-origin websocket upgrades and the configured
// origins. It returns nil, the upgrader's same-origin default, when none are
// configured.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
