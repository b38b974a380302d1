// Package server initializes and runs the result service: it wires the
// ledger, object store, crypto engine, Hub client and OIDC verifier, then
// serves the HTTP surface and the delivery dispatcher until shutdown.
package server

import (
	"context"
	"crypto/ecdh"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fedanode/result-service/internal/cryptox"
	"github.com/fedanode/result-service/internal/logging"
	"github.com/fedanode/result-service/internal/server/config"
	"github.com/fedanode/result-service/internal/server/dispatcher"
	"github.com/fedanode/result-service/internal/server/httpapi"
	"github.com/fedanode/result-service/internal/server/hub"
	"github.com/fedanode/result-service/internal/server/oidc"
	"github.com/fedanode/result-service/internal/server/repositories/repomanager"
	"github.com/fedanode/result-service/internal/server/storage"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	repos      repomanager.RepositoryManager
	store      *storage.S3Store
	httpServer *httpapi.Server
	dispatcher *dispatcher.Dispatcher
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	repos, err := repomanager.NewPostgresRepositoryManager(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	store, err := storage.NewS3Store(ctx, storage.S3Options{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	priv, pub, err := loadKeys(cfg)
	if err != nil {
		return nil, fmt.Errorf("key material error: %w", err)
	}
	engine, err := cryptox.NewEngine(priv, pub)
	if err != nil {
		return nil, fmt.Errorf("crypto engine error: %w", err)
	}

	var creds hub.Credentials
	if cfg.HubAuthMethod == config.AuthMethodRobot {
		creds = hub.RobotCredentials{ID: cfg.HubRobotID, Secret: cfg.HubRobotSecret}
	} else {
		creds = hub.PasswordCredentials{Username: cfg.HubUsername, Password: cfg.HubPassword}
	}
	tokens := hub.NewCachedTokenSource(cfg.HubAuthBaseURL, creds, nil)
	hubClient := hub.NewClient(cfg.HubCoreBaseURL, cfg.HubStorageBaseURL, tokens, nil)

	var verifier oidc.Verifier
	if cfg.OIDCSkipValidation {
		logger.Warn(ctx, "OIDC signature validation disabled")
		verifier = &oidc.InsecureVerifier{ClientIDClaim: cfg.OIDCClientIDClaimName}
	} else {
		verifier, err = oidc.NewJWKSVerifier(ctx, cfg.OIDCCertsURL, cfg.OIDCClientIDClaimName)
		if err != nil {
			return nil, fmt.Errorf("oidc init error: %w", err)
		}
	}

	httpServer := httpapi.NewServer(logger, verifier, store, repos.Results(), repos.Tags(), hubClient, httpapi.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		Checks: map[string]httpapi.CheckFunc{
			"postgres":     repos.Conn().PingContext,
			"object-store": store.Check,
		},
	})

	disp := dispatcher.New(repos.Results(), store, engine, hubClient, logger, dispatcher.Options{
		Workers:      cfg.DispatcherWorkers,
		BatchSize:    cfg.DispatcherBatchSize,
		PollInterval: cfg.DispatcherPollInterval,
		LeaseTTL:     cfg.DispatcherLeaseTTL,
		MaxAttempts:  cfg.DispatcherMaxAttempts,
		BackoffBase:  cfg.DispatcherBackoffBase,
		BackoffCap:   cfg.DispatcherBackoffCap,
	})

	return &App{
		config:     cfg,
		logger:     logger,
		repos:      repos,
		store:      store,
		httpServer: httpServer,
		dispatcher: disp,
	}, nil
}

// loadKeys resolves the configured key material into ECDH keys.
func loadKeys(cfg *config.Config) (*ecdh.PrivateKey, *ecdh.PublicKey, error) {
	if cfg.KeyProvider == config.KeyProviderRaw {
		priv, err := cryptox.ParsePrivateKeyHex(cfg.ECDHPrivateKey)
		if err != nil {
			return nil, nil, err
		}
		pub, err := cryptox.ParsePublicKeyHex(cfg.HubPublicKey)
		if err != nil {
			return nil, nil, err
		}
		return priv, pub, nil
	}

	priv, err := cryptox.LoadPrivateKeyFile(cfg.ECDHPrivateKey)
	if err != nil {
		return nil, nil, err
	}
	pub, err := cryptox.LoadPublicKeyFile(cfg.HubPublicKey)
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:         app.config.EndpointAddrHTTP,
		Handler:      app.httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, "http server error", "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting result service")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.dispatcher.Run(ctx)
	}()

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Error(context.Background(), "db close error", "error", err)
	}

	app.logger.Info(context.Background(), "result service stopped")
}
