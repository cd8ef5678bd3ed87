// Package server initializes and runs the proxy: it opens the database,
// runs migrations, builds the services and serves the HTTP gateway and the
// gRPC health service until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/tornproxy/internal/common"
	"github.com/dmitrijs2005/tornproxy/internal/cryptox"
	"github.com/dmitrijs2005/tornproxy/internal/logging"
	"github.com/dmitrijs2005/tornproxy/internal/server/api"
	"github.com/dmitrijs2005/tornproxy/internal/server/config"
	"github.com/dmitrijs2005/tornproxy/internal/server/denylist"
	"github.com/dmitrijs2005/tornproxy/internal/server/gateway"
	"github.com/dmitrijs2005/tornproxy/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tornproxy/internal/server/services"
	"github.com/dmitrijs2005/tornproxy/internal/server/upstream"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/tornproxy/internal/server/grpc"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = time.Hour
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	redis    *redis.Client
	denylist denylist.Store
	router   *gin.Engine
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	if err := c.Validate(); err != nil {
		return nil, err
	}

	key, err := cryptox.ParseMasterKey(c.VaultKey, c.VaultSalt)
	if err != nil {
		return nil, err
	}
	vault, err := cryptox.NewVault(key)
	common.WipeByteArray(key)
	if err != nil {
		return nil, err
	}

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}

	app.denylist, err = app.newDenyList(ctx, rm)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	client, err := upstream.NewClient(c.PrimaryUpstreamURL, c.CompanionUpstreamURL, c.UpstreamTimeout, logger)
	if err != nil {
		_ = app.close()
		return nil, err
	}

	sessions := services.NewSessionService(db, rm, vault, client, app.denylist, c, logger)
	credentials := services.NewCredentialService(db, rm, vault, logger)

	if !c.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	app.router = api.NewRouter(&api.Server{
		Sessions:     sessions,
		Credentials:  credentials,
		Proxy:        gateway.New(credentials, client, logger),
		Health:       db.PingContext,
		SecureCookie: !c.IsDevelopment(),
		Logger:       logger,
	})

	return app, nil
}

func (app *App) newDenyList(ctx context.Context, rm repomanager.RepositoryManager) (denylist.Store, error) {
	switch app.config.DenyList {
	case config.DenyListPostgres:
		return denylist.NewPostgresStore(app.db, rm), nil
	case config.DenyListRedis:
		client, err := denylist.OpenRedis(ctx, app.config.RedisAddr)
		if err != nil {
			return nil, err
		}
		app.redis = client
		return denylist.NewRedisStore(client), nil
	default:
		return denylist.Nop(), nil
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "HTTP shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", srv.Addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewHealthServer(app.config.EndpointAddrGRPC, app.logger, app.db.PingContext, 10*time.Second)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// purgeRevokedSessions drops expired deny list rows; redis expires its own.
func (app *App) purgeRevokedSessions(ctx context.Context) {
	store, ok := app.denylist.(*denylist.PostgresStore)
	if !ok {
		return
	}

	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Purge(ctx)
			if err != nil {
				app.logger.Warn(ctx, "revoked session purge failed", "error", err)
				continue
			}
			app.logger.Debug(ctx, "revoked sessions purged", "count", n)
		}
	}
}

func (app *App) close() error {
	var errs []error
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	errs = append(errs, app.db.Close())
	return errors.Join(errs...)
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.purgeRevokedSessions(ctx)
	}()

	wg.Wait()

	if err := app.close(); err != nil {
		app.logger.Error(ctx, "close error", "error", err)
	}
	app.logger.Info(ctx, "Stopped")
}
