package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	oauth "github.com/giantswarm/oauth2-provider"
	"github.com/giantswarm/oauth2-provider/host"
	"github.com/giantswarm/oauth2-provider/instrumentation"
	"github.com/giantswarm/oauth2-provider/internal/config"
	"github.com/giantswarm/oauth2-provider/internal/version"
)

var (
	addr           string
	storageBackend string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authorization server",
	Long: `Start the authorization server.

Endpoints:
  GET  /oauth/authorize     authorization request, consent page
  POST /oauth/authorize     consent decision
  POST /oauth/access_token  authorization code exchange
  GET  /login, POST /login  local login form
  GET  /protected           sample resource requiring an access token
  GET  /healthz             liveness probe
  GET  /metrics             Prometheus metrics

Examples:
  # Local users, in-memory storage
  OAUTH2_PROVIDER_SECRET=change-me \
  OAUTH2_PROVIDER_USERS='[{"username":"alice","password":"pw"}]' \
  OAUTH2_PROVIDER_CLIENTS='[{"client_id":"app","client_secret":"s3cret","redirect_uris":["http://localhost:3000/cb"]}]' \
  oauth2-provider serve

  # Valkey storage on a custom port
  OAUTH2_PROVIDER_STORAGE=valkey oauth2-provider serve --addr :9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&addr, "addr", "",
		"listen address (overrides OAUTH2_PROVIDER_ADDR)")
	serveCmd.Flags().StringVar(&storageBackend, "storage", "",
		"storage backend: memory, valkey or redis (overrides OAUTH2_PROVIDER_STORAGE)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if storageBackend != "" {
		cfg.Storage.Backend = storageBackend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger.Info("Starting oauth2-provider",
		"version", version.Version,
		"addr", cfg.Addr,
		"storage", cfg.Storage.Backend,
		"codec", cfg.Codec.Scheme)

	instCfg := instrumentation.Config{
		ServiceName:    "oauth2-provider",
		ServiceVersion: version.Version,
		Enabled:        cfg.MetricsEnabled,
		LogClientIPs:   cfg.LogClientIPs,
	}
	if cfg.MetricsEnabled {
		instCfg.MetricsExporter = instrumentation.MetricsExporterPrometheus
	}
	inst, err := instrumentation.New(instCfg)
	if err != nil {
		return fmt.Errorf("creating instrumentation: %w", err)
	}
	defer func() {
		if err := inst.Shutdown(context.Background()); err != nil {
			logger.Warn("Failed to shut down instrumentation", "error", err)
		}
	}()

	codec, err := cfg.Codec.Codec()
	if err != nil {
		return fmt.Errorf("creating codec: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg.Storage, inst, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer closeStore()

	clients, err := cfg.StorageClients(bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := seedClients(ctx, store, clients); err != nil {
		return err
	}

	authenticate, err := cfg.Authenticator(bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	h, err := host.New(host.Config{
		Clients:        store,
		Grants:         store,
		Codec:          codec,
		Authenticate:   authenticate,
		Upstream:       cfg.HostUpstream(),
		GrantTTL:       cfg.GrantTTL,
		AccessTokenTTL: cfg.AccessTokenTTL,
		SessionTTL:     cfg.SessionTTL,
		SecureCookies:  cfg.SecureCookies,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("creating host: %w", err)
	}

	p, err := oauth.New(h, &oauth.Config{
		Codec:            codec,
		RedirectDenials:  cfg.RedirectDenials,
		DisableSkipAllow: cfg.DisableSkipAllow,
		ExtensionTimeout: cfg.ExtensionTimeout,
		RateLimit: oauth.RateLimitConfig{
			Rate:  cfg.RateLimit,
			Burst: cfg.RateLimitBurst,
		},
		Security: oauth.SecurityConfig{
			TrustProxy:          cfg.TrustProxy,
			TrustedProxyCount:   cfg.TrustedProxyCount,
			DisableAuditLogging: cfg.DisableAuditLogging,
		},
		Logger:          logger,
		Instrumentation: inst,
	})
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(p, h, metricsHandler(cfg.MetricsEnabled)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("running server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown incomplete", "error", err)
	}
	return p.Shutdown(shutdownCtx)
}
