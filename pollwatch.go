package pollwatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/CedricFinance/pollwatch/application"
	"github.com/CedricFinance/pollwatch/config"
	"github.com/CedricFinance/pollwatch/database"
	"github.com/CedricFinance/pollwatch/domain/entities"
	"github.com/CedricFinance/pollwatch/domain/services"
	"github.com/CedricFinance/pollwatch/infrastructure/doodle"
	"github.com/CedricFinance/pollwatch/infrastructure/notifier"
	"github.com/CedricFinance/pollwatch/infrastructure/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// App holds the bot: the subscription store, the monitor re-checking polls
// and the HTTP server answering slash commands.
type App struct {
	Subscriptions *services.Subscriptions
	Monitor       *application.Monitor

	logger   *zap.Logger
	commands *application.Server
	server   *http.Server
	client  *doodle.Client
	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{logger: logger}

	repo, err := app.openRepository(ctx, cfg)
	if err != nil {
		app.close()
		return nil, err
	}

	app.client = doodle.NewClient(cfg.GetFetchTimeout())
	source := services.NewSnapshotSource(app.client, doodle.Parser{})

	app.Subscriptions = services.NewSubscriptions(repo, source, entities.NewPollURLMatcher(cfg.GetPollHost()))
	if err := app.Subscriptions.Load(ctx); err != nil {
		app.close()
		return nil, err
	}
	logger.Info("subscriptions loaded",
		zap.String("store", cfg.GetStoreDriver()),
		zap.Int("polls", app.Subscriptions.Len()))

	app.Monitor = application.NewMonitor(app.Subscriptions, source, newNotifier(cfg, logger), logger, application.MonitorConfig{
		ScanInterval:    cfg.GetScanInterval(),
		Staleness:       cfg.GetStaleness(),
		PersistInterval: cfg.GetPersistInterval(),
		Workers:         cfg.GetWorkers(),
	})

	app.commands = &application.Server{
		Subscriptions: app.Subscriptions,
		SigningSecret: cfg.GetSlackSigningSecret(),
		Logger:        logger.Named("slack"),
	}
	if app.commands.SigningSecret == "" {
		logger.Warn("slack.signing_secret is not set, slash commands are not verified")
	}

	app.server = &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           app.commands.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return app, nil
}

func (a *App) openRepository(ctx context.Context, cfg *config.Config) (services.Repository, error) {
	switch cfg.GetStoreDriver() {
	case "memory":
		return repository.NewMemory(), nil
	case "mysql":
		db, err := database.Connect(cfg.GetDBUsername(), cfg.GetDBPassword(), cfg.GetDBName(), cfg.GetDBHost())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)

		if err := repository.Migrate(ctx, db); err != nil {
			return nil, err
		}
		return repository.NewMySQL(db), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		})
		a.closers = append(a.closers, client.Close)

		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("could not reach redis at %s: %w", cfg.GetRedisAddr(), err)
		}
		return repository.NewRedis(client, cfg.GetRedisKey()), nil
	default:
		return repository.NewFile(cfg.GetStorePath()), nil
	}
}

func newNotifier(cfg *config.Config, logger *zap.Logger) services.Notifier {
	if cfg.GetSlackToken() == "" {
		logger.Warn("slack.token is not set, notifications are only logged")
		return notifier.Log{Logger: logger.Named("notifier")}
	}
	return notifier.NewSlack(cfg.GetSlackToken())
}

// Handler returns the slash command router.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves until ctx is done, then shuts the server down, waits for pending
// slash command outcomes and stops the monitor, which writes the state one
// last time.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := a.Monitor.Start(ctx); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	var serveErr error
	select {
	case serveErr = <-errChan:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	if err := a.commands.Wait(shutdownCtx); err != nil {
		a.logger.Warn("pending slash commands not answered", zap.Error(err))
	}
	if err := a.Monitor.Stop(shutdownCtx); err != nil {
		a.logger.Error("final flush failed", zap.Error(err))
		if serveErr == nil {
			serveErr = err
		}
	}

	return serveErr
}

func (a *App) close() {
	if a.client != nil {
		a.client.Close()
	}
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
