package main

import (
	"fmt"

	"github.com/hopewell/crm/internal/config"
	"github.com/hopewell/crm/internal/configstore"
	"github.com/hopewell/crm/internal/db"
	"github.com/hopewell/crm/internal/kanban"
	"github.com/hopewell/crm/internal/store"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// app is a configured engine plus the resources to release when done.
type app struct {
	cfg     *config.Config
	svc     *kanban.Service
	closers []func() error
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.WithError(err).Debug("close")
		}
	}
}

// openApp loads the config, sets up logging, connects both stores and
// builds the engine.
func openApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}
	catalog := kanban.DefaultCatalog().WithOverrides(cfg.Pipelines)
	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	gormDB, err := db.ConnectAndMigrate(cfg.Database)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	a := &app{cfg: cfg, closers: []func() error{sqlDB.Close}}

	configs, closeConfigs := openStageStore(cfg.StageStore)
	if closeConfigs != nil {
		a.closers = append(a.closers, closeConfigs)
	}

	a.svc = kanban.NewService(store.NewGormStore(gormDB), configs, kanban.WithCatalog(catalog))
	return a, nil
}

// openStageStore returns the configured store for customised stage sets
// and an optional closer.
func openStageStore(cfg config.StageStoreConfig) (configstore.Store, func() error) {
	switch cfg.Kind {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return configstore.NewRedisStore(client, cfg.Prefix), client.Close
	default:
		return configstore.NewFileStore(cfg.Dir), nil
	}
}

// setupLogging applies the configured level and format to the global
// logrus logger.
func setupLogging(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
