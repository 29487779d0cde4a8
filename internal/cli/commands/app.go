package commands

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nickmessing/firemodel/internal/cli/config"
	"github.com/nickmessing/firemodel/internal/cli/ui"
	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/db/memory"
	"github.com/nickmessing/firemodel/internal/db/redisstore"
	"github.com/nickmessing/firemodel/internal/db/sqlstore"
	"github.com/nickmessing/firemodel/internal/orm/dispatch"
	"github.com/nickmessing/firemodel/internal/orm/session"
)

// knownModels holds the model names of the last opened configuration for
// error suggestions
var knownModels []string

// app is everything a command needs, assembled from the configuration
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	database *db.Database
	queue    *dispatch.AsyncQueue
	sess     *session.Session
}

// loadConfig reads --config, or firemodel.yaml in the working directory
func loadConfig() (*config.Config, error) {
	return config.LoadFile(configPath)
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	return cfg.Build()
}

// warnEphemeral tells the user that writes to the memory backend end
// with the process
func (a *app) warnEphemeral(w io.Writer) {
	if a.cfg.Database.Backend != config.BackendMemory && a.cfg.Database.Backend != "" {
		return
	}
	fmt.Fprintln(w, ui.Warning("The memory backend keeps records only while this command runs; nothing was persisted.",
		[]string{"Set database.backend to sqlite, postgres or redis in firemodel.yaml"}, noColor))
}

// openApp loads the configuration, connects the configured backend and
// defines every configured model on a new session
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	builders, err := cfg.Builders()
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	database := db.New(store, db.WithLogger(logger))

	var queue *dispatch.AsyncQueue
	if cfg.Dispatch.Workers > 0 {
		queue = dispatch.NewAsyncQueue(cfg.Dispatch.Workers, logger)
		queue.Start()
	}

	sess := session.New(
		session.WithDB(database),
		session.WithDispatcher(dispatch.NewDispatcher(queue, logger)),
		session.WithLogger(logger),
		session.WithAuditLogs(cfg.Audit.Path),
	)

	a := &app{cfg: cfg, logger: logger, database: database, queue: queue, sess: sess}
	for _, b := range builders {
		if _, err := sess.Define(b); err != nil {
			a.Close()
			return nil, err
		}
	}
	knownModels = sess.Registry().List()
	if err := sess.Registry().Validate(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openStore connects the store selected by cfg.Backend
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (db.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return memory.New(), nil

	case config.BackendRedis:
		redisCfg := redisstore.DefaultConfig()
		redisCfg.Addr = cfg.Redis.Addr
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		if cfg.Redis.Prefix != "" {
			redisCfg.Prefix = cfg.Redis.Prefix
		}
		store, err := redisstore.New(redisCfg, logger)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendPostgres, config.BackendSQLite:
		dialect, err := sqlstore.ParseDialect(cfg.Backend)
		if err != nil {
			return nil, err
		}
		sqlCfg := sqlstore.DefaultConfig()
		sqlCfg.Dialect = dialect
		if cfg.Table != "" {
			sqlCfg.Table = cfg.Table
		}
		store, err := sqlstore.Open(ctx, cfg.URL, sqlCfg, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported database backend %q", cfg.Backend)
	}
}

// Close drains the dispatch queue and closes the database
func (a *app) Close() error {
	if a.queue != nil {
		a.queue.Shutdown()
	}
	err := a.database.Close()
	// syncing stderr fails on some terminals
	_ = a.logger.Sync()
	return err
}
