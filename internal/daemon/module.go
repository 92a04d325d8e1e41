package daemon

import (
	"context"
	"errors"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/bus"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/cache"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/config"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/health"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/lock"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/logging"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/outbox"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/relay"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/store"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/telegram"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/workdir"
)

// Params holds the resolved runtime settings passed to the fx module.
type Params struct {
	DataDir    string
	Token      string // optional override; empty = token from config
	SocketPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the relay daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideClient,
			provideTransport,
			provideMonitor,
			provideCache,
			provideEngine,
			provideSender,
			NewObservers,
			NewServer,
		),
		// The sender has no lifecycle of its own; construct it eagerly so the
		// embedding application can Populate a handle to it.
		fx.Invoke(func(*outbox.Sender) {}),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := workdir.ConfigPath(p.DataDir)
	// First run: write the defaults out so operators have a file to edit.
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path, config.Default()); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if p.Token != "" {
		cfg.Telegram.Token = p.Token
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if err := workdir.EnsureDir(p.DataDir); err != nil {
		return nil, err
	}
	return logging.New(workdir.LogPath(p.DataDir), "relayd", cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring relay lock", zap.String("dir", p.DataDir))
	l, err := lock.Acquire(p.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("relay lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := workdir.DBPath(p.DataDir)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideClient(cfg *config.Config, logger *zap.Logger) (*telegram.Client, error) {
	if cfg.Telegram.Token == "" {
		return nil, errors.New("telegram token not configured: set [telegram] token in config.toml or TELEGRAM_BOT_TOKEN")
	}
	return telegram.NewClient(cfg.Telegram.Token, cfg.Poll.Timeout(), logger), nil
}

func provideTransport(c *telegram.Client) relay.Transport {
	return c
}

func provideMonitor(cfg *config.Config, b *bus.Bus) *health.Monitor {
	return health.NewMonitor(cfg.Poll.BackoffBase(), cfg.Poll.BackoffCap(), cfg.Poll.MaxAttempts, b)
}

func provideCache(cfg *config.Config, logger *zap.Logger) *cache.Cache {
	return cache.New(cfg.Cache.Retention(), cfg.Cache.MaxPerConversation, logger)
}

func provideEngine(cfg *config.Config, t relay.Transport, db *store.DB, c *cache.Cache, m *health.Monitor, b *bus.Bus, logger *zap.Logger) *relay.Engine {
	return relay.New(*cfg, t, db, c, m, b, logger)
}

// provideSender exposes the outbound path to the embedding application; the
// daemon itself only hosts it.
func provideSender(db *store.DB, c *cache.Cache, client *telegram.Client, m *health.Monitor, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, c, client, m, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, engine *relay.Engine, obs *Observers, c *cache.Cache, cfg *config.Config, logger *zap.Logger) {
	var sweepCancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Observers first so no early connection event is missed.
			obs.Start(context.Background())

			var sweepCtx context.Context
			sweepCtx, sweepCancel = context.WithCancel(context.Background())
			go c.Run(sweepCtx, cfg.Cache.SweepInterval())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("health server error", zap.Error(err))
				}
			}()

			return engine.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			engine.Stop()
			if sweepCancel != nil {
				sweepCancel()
			}
			obs.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
