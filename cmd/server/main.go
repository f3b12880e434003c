package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"

	"linknote-server/internal/config"
	"linknote-server/internal/handler"
	"linknote-server/internal/logging"
	"linknote-server/internal/ratelimit"
	"linknote-server/internal/render"
	"linknote-server/internal/repository"
	"linknote-server/internal/service"
	"linknote-server/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "linknote-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	root, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	logger := root.Named("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, closer, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	repo := repository.NewRecordRepository(kv,
		repository.WithPageSize(cfg.Store.PageSize),
		repository.WithLogger(root.Named("store")),
	)

	wsManager := websocket.NewManager(websocket.Options{
		MaxConnPerIdentity: cfg.WebSocket.MaxConnPerIdentity,
		WriteWait:          cfg.WebSocket.WriteWait,
		PongWait:           cfg.WebSocket.PongWait,
		PingPeriod:         cfg.WebSocket.PingPeriod,
		MaxMessageSize:     cfg.WebSocket.MaxMessageSize,
	}, root.Named("feed"))
	defer wsManager.CloseAll()

	limiter := ratelimit.New(cfg.Unlock.MaxAttempts, cfg.Unlock.Window)
	go limiter.Run(ctx, cfg.Unlock.SweepInterval)

	gateService := service.NewGateService(repo, limiter, service.GateConfig{
		Secret:      cfg.Unlock.Secret,
		UnlockTTL:   cfg.Unlock.TTL,
		LookupDelay: cfg.Unlock.LookupDelay,
	}, root.Named("gate"))
	recordService := service.NewRecordService(repo, wsManager, root.Named("records"))
	bulkService := service.NewBulkService(repo, wsManager, root.Named("bulk"), cfg.Bulk.Concurrency)

	pages, err := render.New()
	if err != nil {
		return err
	}

	router := handler.NewRouter(handler.RouterConfig{
		AdminHeader:    cfg.Admin.IdentityHeader,
		AdminAllowed:   cfg.Admin.AllowedIdentities,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
	},
		handler.NewPublicHandler(gateService, pages, handler.PublicConfig{
			CookieSecure:      cfg.Unlock.CookieSecure,
			TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		}, root.Named("public")),
		handler.NewAdminHandler(recordService, bulkService, root.Named("admin")),
		handler.NewWebSocketHandler(wsManager, cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize,
			cfg.CORS.AllowedOrigins, root.Named("feed")),
		root.Named("http"),
	)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting linknote server", "addr", addr, "env", cfg.Server.Env, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// openStore builds the configured key-value driver. The closer is nil when
// the driver holds nothing open.
func openStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (repository.KV, io.Closer, error) {
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("using in-memory store, records are lost on restart")
		return repository.NewMemoryKV(), nil, nil

	case "bolt":
		kv, err := repository.OpenBoltKV(cfg.Store.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened bolt store", "path", cfg.Store.BoltPath)
		return kv, kv, nil

	default:
		client, err := kivik.New("couch", cfg.Database.URL())
		if err != nil {
			return nil, nil, fmt.Errorf("connect to CouchDB: %w", err)
		}
		created, err := repository.EnsureDatabase(ctx, client, cfg.Database.Name)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		if created {
			logger.Info("created database", "name", cfg.Database.Name)
		}
		logger.Info("connected to CouchDB", "host", cfg.Database.Host, "port", cfg.Database.Port)
		return repository.NewCouchKV(client, cfg.Database.Name), client, nil
	}
}
