package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"slotbot/internal/config"
	"slotbot/internal/ics"
	appLog "slotbot/internal/log"
	"slotbot/internal/login"
	"slotbot/internal/render"
	"slotbot/internal/schedule"
)

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func remove(c *cli.Context) error {
	id, err := strconv.Atoi(c.Args().First())
	if err != nil {
		fmt.Println("Invalid ID")
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	e, err := openEnv(ctx, c)
	if err != nil {
		return err
	}
	defer e.Close()

	removed, err := e.sched.Remove(ctx, id)
	if errors.Is(err, schedule.ErrInvalidID) {
		fmt.Println("Invalid ID")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", removed)
	return nil
}

func show(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := openEnv(ctx, c)
	if err != nil {
		return err
	}
	defer e.Close()

	fmt.Println(render.Table(e.sched.Occurrences(), e.loc, time.Now()))
	return nil
}

func export(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := openEnv(ctx, c)
	if err != nil {
		return err
	}
	defer e.Close()

	var buf bytes.Buffer
	if err := ics.Export(&buf, e.sched.Occurrences(), e.loc); err != nil {
		return err
	}
	path := c.Args().First()
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(buf.Bytes())
		return err
	}
	if err := config.WriteFileAtomic(config.ExpandPath(path), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	fmt.Printf("Wrote %d entries to %s\n", e.sched.Len(), path)
	return nil
}

var loginFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "username, u",
		Usage: "account username; saved to the config file",
	},
	cli.StringFlag{
		Name:   "password, p",
		Usage:  "account password; stored in the OS keyring",
		EnvVar: "SLOTBOT_PASSWORD",
	},
	cli.BoolFlag{
		Name:  "verify",
		Usage: "open the browser and log in once after storing",
	},
}

func storeLogin(c *cli.Context) error {
	cfg, path, err := loadConfig(c)
	if err != nil {
		return err
	}
	if u := c.String("username"); u != "" && u != cfg.Login.Username {
		cfg.Login.Username = u
		if err := cfg.Save(path); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}

	creds := credentials(cfg)
	if pw := c.String("password"); pw != "" {
		if err := creds.StorePassword(pw); err != nil {
			return err
		}
		fmt.Printf("Password for %s stored in keyring %q\n", creds.Username, creds.Service)
	} else if _, err := creds.Password(); err != nil {
		return err
	}

	if !c.Bool("verify") {
		return nil
	}
	ctx, cancel := signalContext()
	defer cancel()
	sess, err := login.Open(ctx, creds, loginOptions(cfg))
	if err != nil {
		return err
	}
	sess.Close()
	fmt.Println("Login OK")
	return nil
}

func credentials(cfg *config.Config) login.Credentials {
	return login.Credentials{Service: cfg.Login.KeyringService, Username: cfg.Login.Username}
}

func loginOptions(cfg *config.Config) login.Options {
	return login.Options{
		URL:              cfg.Login.URL,
		UsernameSelector: cfg.Login.UsernameSelector,
		PasswordSelector: cfg.Login.PasswordSelector,
		SubmitSelector:   cfg.Login.SubmitSelector,
		ReadySelector:    cfg.Login.ReadySelector,
		Headless:         cfg.Login.Headless,
		Timeout:          cfg.LoginTimeout(),
	}
}
