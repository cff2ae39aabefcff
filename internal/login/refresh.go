package login

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "slotbot/internal/log"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Refresher re-runs a login on a cron schedule so the session survives
// the idle days between claims.
type Refresher struct {
	c     *cron.Cron
	spec  string
	login func() error
	busy  func() bool
}

// ValidateSpec reports whether spec is a usable refresh schedule.
func ValidateSpec(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("login: invalid refresh spec %q: %w", spec, err)
	}
	return nil
}

// NewRefresher schedules login on spec, evaluated in loc. A failed login
// is logged and retried at the next tick. A tick is skipped while busy
// reports true, so a slow login cannot hold the browser when a claim is
// about to run. busy may be nil.
func NewRefresher(spec string, loc *time.Location, login func() error, busy func() bool) (*Refresher, error) {
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}
	r := &Refresher{
		c:     cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		spec:  spec,
		login: login,
		busy:  busy,
	}
	if _, err := r.c.AddFunc(spec, r.tick); err != nil {
		return nil, fmt.Errorf("login: schedule refresh: %w", err)
	}
	return r, nil
}

func (r *Refresher) tick() {
	if r.busy != nil && r.busy() {
		appLog.Info("session refresh skipped, claim due soon", "next", r.Next(time.Now()).Format(time.RFC3339))
		return
	}
	if err := r.login(); err != nil {
		appLog.Error("session refresh failed", err)
		return
	}
	appLog.Debug("session refreshed")
}

// Next returns when the next refresh runs after t.
func (r *Refresher) Next(t time.Time) time.Time {
	sched, err := parser.Parse(r.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t)
}

func (r *Refresher) Start() {
	r.c.Start()
	appLog.Info("session refresh scheduled", "spec", r.spec, "next", r.Next(time.Now()).Format(time.RFC3339))
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.c.Stop().Done()
}
