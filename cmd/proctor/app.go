package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/zulandar/proctor/internal/claim"
	"github.com/zulandar/proctor/internal/config"
	"github.com/zulandar/proctor/internal/db"
	"github.com/zulandar/proctor/internal/dispatch"
	"github.com/zulandar/proctor/internal/evaluation"
	"github.com/zulandar/proctor/internal/interview"
	"github.com/zulandar/proctor/internal/logging"
	"github.com/zulandar/proctor/internal/notify"
	"github.com/zulandar/proctor/internal/recording"
	"github.com/zulandar/proctor/internal/storage"
	"github.com/zulandar/proctor/internal/sweeper"
	"github.com/zulandar/proctor/internal/textgen"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultConfigPath = "proctor.yaml"

// loadConfig reads path. A missing default config file falls back to the
// built-in defaults so a fresh checkout runs against sqlite.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Parse([]byte("{}"))
	}
	return cfg, err
}

// app is the fully wired service graph.
type app struct {
	cfg         *config.Config
	log         *zap.Logger
	db          *gorm.DB
	interviews  *interview.Store
	evaluations *evaluation.Store
	claims      claim.Store
	recorder    *recording.Coordinator
	pipeline    *evaluation.Pipeline
	dispatcher  *dispatch.Dispatcher
	sweeper     *sweeper.Sweeper
	notifier    *notify.Notifier
	closers     []func() error
}

// connectFromConfig loads the config, builds the logger and opens the
// database.
func connectFromConfig(configPath string) (*config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, nil, err
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, gormDB, nil
}

// buildApp wires every component from the config at configPath.
func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, log, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, db: gormDB}
	if sqlDB, err := gormDB.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	a.interviews = interview.NewStore(gormDB, interview.WithOpTimeout(cfg.Database.OpTimeout))
	a.evaluations = evaluation.NewStore(gormDB)

	switch cfg.Dispatch.ClaimBackend {
	case "redis":
		client := claim.NewRedisClient(cfg.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: ping %s: %w", cfg.Redis.Address, err)
		}
		a.closers = append(a.closers, client.Close)
		a.claims = claim.NewRedisStore(client, "")
	default:
		a.claims = claim.NewGormStore(gormDB, nil, claim.WithOpTimeout(cfg.Database.OpTimeout))
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.recorder = recording.New(a.interviews, objects, cfg.Storage.Prefix, log.Named("recording"))

	a.notifier, err = notify.FromConfig(ctx, cfg.Notify, log.Named("notify"))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pipeline = evaluation.NewPipeline(evaluation.Options{
		Interviews:   a.interviews,
		Directory:    evaluation.NewGormDirectory(gormDB, cfg.Database.OpTimeout),
		Generator:    textgen.NewOpenAI(cfg.TextGen),
		Results:      a.evaluations,
		Notifier:     a.notifier,
		StageTimeout: cfg.Dispatch.StageTimeout,
		Logger:       log.Named("pipeline"),
	})
	a.dispatcher = dispatch.New(dispatch.Opts{
		Interviews: a.interviews,
		Claims:     a.claims,
		Pipeline:   a.pipeline,
		Timeout:    cfg.Dispatch.Timeout,
		ClaimTTL:   cfg.Dispatch.ClaimTTL,
		Logger:     log.Named("dispatch"),
	})
	a.sweeper = sweeper.New(a.interviews, a.claims, cfg.Lifecycle.InactivityWindow, log.Named("sweeper"))
	return a, nil
}

// Close waits for pending notifications and releases connections.
func (a *app) Close() {
	if a.notifier != nil {
		a.notifier.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.log.Sync()
}
