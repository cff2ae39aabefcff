package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli"

	"slotbot/internal/model"
	"slotbot/internal/render"
)

var addFlags = []cli.Flag{
	cli.BoolFlag{
		Name:  "weekly, w",
		Usage: "re-arm the sign-up for the following week after it fires",
	},
}

var errAddUsage = errors.New("usage: slotbot add <sport> <weekday> <HH:MM> [--weekly|-w] <facility>")

// parseAddArgs builds an intent from the positional arguments. The weekly
// flag may also appear between the time and the facility, where the flag
// parser no longer sees it. Trailing words form the facility name.
func parseAddArgs(args []string, weekly bool) (model.Intent, error) {
	rest := make([]string, 0, len(args))
	for _, a := range args {
		switch a {
		case "-w", "--weekly", "-weekly":
			weekly = true
		default:
			rest = append(rest, a)
		}
	}
	if len(rest) < 4 {
		return model.Intent{}, errAddUsage
	}
	return model.Intent{
		Activity: rest[0],
		Weekday:  rest[1],
		Time:     rest[2],
		Facility: strings.Join(rest[3:], " "),
		Weekly:   weekly,
	}, nil
}

func add(c *cli.Context) error {
	intent, err := parseAddArgs(c.Args(), c.Bool("weekly"))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	e, err := openEnv(ctx, c)
	if err != nil {
		return err
	}
	defer e.Close()

	occ, err := newResolver(e.cfg).Resolve(ctx, intent)
	if err != nil {
		return fmt.Errorf("add %s: %w", intent.Activity, err)
	}
	occ.Weekly = intent.Weekly

	added, err := e.sched.Add(ctx, occ)
	if err != nil {
		return err
	}
	fmt.Printf("Scheduled %s, sign-up opens %s\n", added, added.FireAt().In(e.loc).Format(render.SignupLayout))
	return nil
}
