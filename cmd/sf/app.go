package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/zulandar/shopfloor/internal/cascade"
	"github.com/zulandar/shopfloor/internal/config"
	"github.com/zulandar/shopfloor/internal/db"
	"github.com/zulandar/shopfloor/internal/metrics"
	"github.com/zulandar/shopfloor/internal/notify"
	"github.com/zulandar/shopfloor/internal/store"
	"gorm.io/gorm"
)

// app is the wiring shared by commands that run cascade operations.
type app struct {
	cfg        *config.Config
	db         *gorm.DB
	store      *store.GormStore
	engine     *cascade.Engine
	dispatcher *notify.Dispatcher
	metrics    *metrics.Recorder
	log        *slog.Logger
	closeSinks func()
}

// newApp loads config, connects and builds the engine with its notification
// dispatcher. Close flushes pending notifications.
func newApp(cmd *cobra.Command, configPath string) (*app, error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}

	sinks, closeSinks, err := notify.SinksFromConfig(cfg.Notify, gormDB)
	if err != nil {
		closeDB(gormDB)
		return nil, fmt.Errorf("notification sinks: %w", err)
	}

	rec := metrics.New()
	opts := notify.OptionsFromConfig(cfg.Notify, logger)
	opts.Recorder = rec
	opts.Log = notify.NewGormDeliveryLog(gormDB)
	dispatcher := notify.NewDispatcher(sinks, opts)
	dispatcher.Start(context.Background())

	st := store.NewGormStore(gormDB)
	engine := cascade.New(cascade.Options{
		Store:    st,
		Notifier: dispatcher,
		Recorder: rec,
		Logger:   logger,
		Config:   cfg.Cascade,
	})

	logger.Debug("shopfloor ready", "driver", cfg.Database.Driver, "sinks", len(sinks))
	return &app{
		cfg:        cfg,
		db:         gormDB,
		store:      st,
		engine:     engine,
		dispatcher: dispatcher,
		metrics:    rec,
		log:        logger,
		closeSinks: closeSinks,
	}, nil
}

// Close drains the notification queue and releases connections.
func (a *app) Close() {
	a.dispatcher.Close()
	a.closeSinks()
	closeDB(a.db)
}

// tenant returns the --tenant flag or the configured default.
func (a *app) tenant(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if a.cfg.Tenant != "" {
		return a.cfg.Tenant, nil
	}
	return "", fmt.Errorf("tenant is required: pass --tenant or set tenant in config")
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}

	return cfg, gormDB, nil
}

func closeDB(gormDB *gorm.DB) {
	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}
}

// newLogger builds a text logger on stderr at the --log-level level.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	level := "info"
	if f := cmd.Flag("log-level"); f != nil {
		level = f.Value.String()
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl})), nil
}
