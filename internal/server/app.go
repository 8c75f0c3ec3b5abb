// Package server initializes and runs the main application server.
// It configures storage backends, wires the credential services, starts the
// HTTP API and the gRPC health endpoint, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/gatekeeper/internal/server/mail"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/dmitrijs2005/gatekeeper/internal/timex"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/gatekeeper/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	redis     *redis.Client
	issuer    *auth.Issuer
	metrics   *metrics.Registry
	users     *services.UserService
	passwords *services.PasswordService
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger, metrics: metrics.NewRegistry()}

	rm, tx, err := app.initStorage(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	if err := app.initServices(rm, tx); err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

func (app *App) initStorage(ctx context.Context) (repomanager.RepositoryManager, dbx.Transactor, error) {
	c := app.config

	if c.Storage == config.StorageMemory {
		if c.RecoveryStore == config.RecoveryStoreRedis {
			app.logger.Warn(ctx, "recovery store is ignored with in-memory storage")
		}
		app.logger.Warn(ctx, "using in-memory storage, data will not survive a restart")
		return repomanager.NewInMemoryRepositoryManager(), dbx.NopTransactor{}, nil
	}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db

	if err := db.PingContext(ctx); err != nil {
		return nil, nil, fmt.Errorf("db ping error: %w", err)
	}

	if c.RecoveryStore == config.RecoveryStoreRedis {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping error: %w", err)
		}
	}

	rm := repomanager.NewPostgresRepositoryManager(app.redis)
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, nil, fmt.Errorf("migrations error: %w", err)
	}

	return rm, dbx.NewSQLTransactor(db, nil), nil
}

func (app *App) initServices(rm repomanager.RepositoryManager, tx dbx.Transactor) error {
	c := app.config
	clock := timex.SystemClock{}

	vault, err := auth.NewVault(c.BcryptCost)
	if err != nil {
		return err
	}

	issuer, err := auth.NewIssuer(
		auth.SigningKey{Secret: []byte(c.AccessTokenSecret), TTL: c.AccessTokenValidityDuration},
		auth.SigningKey{Secret: []byte(c.RefreshTokenSecret), TTL: c.RefreshTokenValidityDuration},
		clock,
	)
	if err != nil {
		return err
	}
	app.issuer = issuer

	sessions := services.NewSessionRegistry(rm, clock)
	recovery := services.NewRecoveryRegistry(rm, clock, c.ResetTokenValidityDuration)
	mailer := mail.NewSMTPMailer(c.SMTPAddr, c.MailFrom, nil)

	app.users = services.NewUserService(tx, rm, vault, issuer, sessions, app.logger)
	app.passwords = services.NewPasswordService(tx, rm, vault, recovery, sessions, mailer,
		c.FrontendURL, c.MailTimeout, app.logger)

	return nil
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
	h := httpapi.NewHandler(app.users, app.passwords, app.issuer, app.metrics, httpapi.Options{
		RoutePrefix:    app.config.RoutePrefix,
		CookieSecure:   app.config.CookieSecure,
		RequestTimeout: app.config.RequestTimeout,
	}, app.logger)

	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, httpapi.NewServeMux(h), app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	var pinger gs.Pinger
	if app.db != nil {
		pinger = app.db
	}

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, pinger, app.config.HealthCheckInterval)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until a termination signal arrives or one of the servers fails,
// then waits for pending reset mails and releases storage.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.passwords.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(ctx, "shutdown error", "error", err)
	}

	app.logger.Info(ctx, "App stopped")
}

// Close releases the database and Redis connections.
func (app *App) Close() error {
	var errs []error
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
		app.redis = nil
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
		app.db = nil
	}
	return errors.Join(errs...)
}
