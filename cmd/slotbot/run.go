package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/urfave/cli"

	"slotbot/internal/claim"
	appLog "slotbot/internal/log"
	"slotbot/internal/login"
	"slotbot/internal/schedule"
)

func run(c *cli.Context) error {
	cfg, path, err := loadConfig(c)
	if err != nil {
		return err
	}
	appLog.Info("slotbot starting",
		"version", version,
		"config_path", path,
		"timezone", cfg.Timezone,
		"store_driver", cfg.Store.Driver,
		"store_path", cfg.Store.Path,
	)

	ctx, cancel := signalContext()
	defer cancel()

	sess, err := login.Open(ctx, credentials(cfg), loginOptions(cfg))
	if err != nil {
		return err
	}
	defer sess.Close()

	exec := claim.NewExecutor(sess, claim.Options{
		ButtonSelector:  cfg.Claim.ButtonSelector,
		ConfirmSelector: cfg.Claim.ConfirmSelector,
		Timeout:         cfg.ClaimTimeout(),
	})
	e, err := openSchedule(ctx, cfg, exec, newResolver(cfg), schedule.Options{OnFired: logFired})
	if err != nil {
		return err
	}
	defer e.Close()

	refresher, err := login.NewRefresher(cfg.Login.Refresh, cfg.Location(), sess.Login, claimDueWithin(e.sched, refreshQuietPeriod))
	if err != nil {
		return err
	}
	refresher.Start()
	defer refresher.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := watchFile(ctx, e.store.Path(), reloadDebounce, func() {
			if err := e.sched.Reload(ctx); err != nil {
				appLog.Error("reload schedule failed", err, "path", e.store.Path())
			}
		})
		if err != nil {
			appLog.Warn("schedule watcher disabled", "err", err.Error())
		}
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		appLog.Warn("sd_notify failed", "err", err.Error())
	} else if ok {
		appLog.Debug("systemd notified")
	}

	err = e.sched.Run(ctx)
	cancel()
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		appLog.Info("slotbot exiting")
		return nil
	}
	return err
}

// refreshQuietPeriod is how long before a claim no session refresh
// starts, since a login can hold the browser for its whole timeout.
const refreshQuietPeriod = 5 * time.Minute

func claimDueWithin(s *schedule.Scheduler, d time.Duration) func() bool {
	return func() bool {
		at, ok := s.NextFireAt()
		return ok && time.Until(at) < d
	}
}

func logFired(r schedule.FireResult) {
	kv := []any{"id", r.Fired.ID, "sport", r.Fired.Activity, "claimed", r.ClaimErr == nil}
	switch {
	case r.Successor != nil:
		kv = append(kv, "next_id", r.Successor.ID)
	case r.RearmErr != nil:
		kv = append(kv, "rearm_error", r.RearmErr.Error())
	}
	appLog.Info("dispatch finished", kv...)
}
