package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	appLog "slotbot/internal/log"
)

var version = "0.3.0-dev"

const description = `slotbot keeps a schedule of sign-ups and claims each one the moment
its sign-up window opens. Weekly entries re-arm themselves for the next week.`

func Execute(args []string) error {
	app := cli.App{
		Name:        "slotbot",
		HelpName:    "slotbot",
		Usage:       "claim sports slots the moment sign-up opens",
		UsageText:   "slotbot [--config path] <command> [arguments...]",
		Version:     version,
		Description: description,
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:   "config, c",
				Usage:  "path to the YAML config file",
				Value:  defaultConfigPath(),
				EnvVar: "SLOTBOT_CONFIG",
			},
			cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Commands: []cli.Command{
			{
				Name:                   "add",
				Aliases:                []string{"a"},
				Usage:                  "schedule a sign-up",
				UsageText:              "slotbot add <sport> <weekday> <HH:MM> [--weekly|-w] <facility>",
				Action:                 add,
				Flags:                  addFlags,
				UseShortOptionHandling: true,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "remove a pending sign-up by ID",
				UsageText: "slotbot remove <id>",
				Action:    remove,
			},
			{
				Name:    "show",
				Aliases: []string{"ls"},
				Usage:   "list pending sign-ups",
				Action:  show,
			},
			{
				Name:   "run",
				Usage:  "log in and claim sign-ups as their windows open",
				Action: run,
			},
			{
				Name:      "export",
				Usage:     "write pending sign-ups as an iCalendar file",
				UsageText: "slotbot export [path]",
				Action:    export,
			},
			{
				Name:   "login",
				Usage:  "store the account password in the OS keyring",
				Action: storeLogin,
				Flags:  loginFlags,
			},
		},
		Before: func(c *cli.Context) error {
			if c.GlobalBool("debug") {
				appLog.SetLevel(appLog.LevelDebug)
			}
			return nil
		},
		Action: show,
	}
	return app.Run(args)
}

func main() {
	if err := Execute(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "slotbot: %s\n", err)
		os.Exit(1)
	}
}
