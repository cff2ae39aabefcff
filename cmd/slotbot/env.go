package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"slotbot/internal/catalog"
	"slotbot/internal/config"
	appLog "slotbot/internal/log"
	"slotbot/internal/schedule"
	"slotbot/internal/store"
)

// env is what every command needs: the config, the opened store and a
// scheduler loaded from it.
type env struct {
	cfg   *config.Config
	loc   *time.Location
	store store.Store
	sched *schedule.Scheduler
}

func defaultConfigPath() string {
	return config.DefaultPath()
}

// loadConfig reads --config and applies the configured log level unless
// --debug already lowered it.
func loadConfig(c *cli.Context) (*config.Config, string, error) {
	path := config.ExpandPath(c.GlobalString("config"))
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("config %s: %w", path, err)
	}
	if !c.GlobalBool("debug") {
		appLog.SetLevel(appLog.ParseLevel(cfg.Log.Level))
	}
	return cfg, path, nil
}

// openEnv loads the config and the pending schedule for commands that
// only edit it.
func openEnv(ctx context.Context, c *cli.Context) (*env, error) {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return openSchedule(ctx, cfg, nil, nil, schedule.Options{})
}

func openSchedule(ctx context.Context, cfg *config.Config, exec schedule.Executor, res schedule.Resolver, opts schedule.Options) (*env, error) {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}
	if opts.ClaimTimeout == 0 {
		opts.ClaimTimeout = cfg.ClaimTimeout()
	}
	sched := schedule.New(st, exec, res, opts)
	if err := sched.Load(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("load schedule %s: %w", st.Path(), err)
	}
	return &env{cfg: cfg, loc: cfg.Location(), store: st, sched: sched}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		appLog.Warn("closing store failed", "err", err.Error())
	}
}

func newResolver(cfg *config.Config) *catalog.Resolver {
	client := catalog.NewClient(catalog.Options{
		SearchURL:  cfg.Catalog.SearchURL,
		Timeout:    cfg.CatalogTimeout(),
		CacheDir:   config.ExpandPath(cfg.Catalog.CacheDir),
		RatePerSec: cfg.Catalog.RatePerSec,
		Fs:         afero.NewOsFs(),
	})
	return catalog.NewResolver(client, cfg.Catalog.WeekdayIDs, cfg.Location())
}
