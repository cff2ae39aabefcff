package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	appLog "slotbot/internal/log"
)

// Default claim parameters. The selectors match the event page of the
// sign-up portal.
const (
	DefaultButtonSelector  = "button#btnRegister"
	DefaultConfirmSelector = ".alert-success"
	DefaultTimeoutSec      = 60
)

// Browser hands out tabs of an authenticated browser. *login.Session
// implements it.
type Browser interface {
	Do(ctx context.Context, fn func(tabCtx context.Context) error) error
}

// Options defines how a claim is clicked through.
type Options struct {
	// ButtonSelector is the register button on the event page.
	ButtonSelector string
	// ConfirmSelector becomes visible once the sign-up was accepted.
	ConfirmSelector string
	// Timeout bounds one claim on top of any deadline the caller sets.
	// If zero, DefaultTimeoutSec is used.
	Timeout time.Duration
}

// Executor claims events in a logged-in browser.
type Executor struct {
	browser Browser
	opts    Options
	// tasks builds the chromedp actions for one target.
	tasks func(target string) chromedp.Tasks
}

func NewExecutor(b Browser, opts Options) *Executor {
	if opts.ButtonSelector == "" {
		opts.ButtonSelector = DefaultButtonSelector
	}
	if opts.ConfirmSelector == "" {
		opts.ConfirmSelector = DefaultConfirmSelector
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	e := &Executor{browser: b, opts: opts}
	e.tasks = e.claimTasks
	return e
}

// Claim opens target, clicks the register button and waits for the
// confirmation. The sign-up window opens on the server clock, so the
// button may still be disabled for a moment; WaitEnabled covers that.
func (e *Executor) Claim(ctx context.Context, target string) error {
	if target == "" {
		return fmt.Errorf("claim: target is required")
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := e.browser.Do(ctx, func(tabCtx context.Context) error {
		return chromedp.Run(tabCtx, e.tasks(target))
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("claim %s: %w", target, ctxErr)
		}
		return fmt.Errorf("claim %s: chromedp run failed: %w", target, err)
	}
	appLog.Debug("claim confirmed", "url", target, "took", time.Since(start).Round(time.Millisecond).String())
	return nil
}

func (e *Executor) claimTasks(target string) chromedp.Tasks {
	return chromedp.Tasks{
		chromedp.Navigate(target),
		chromedp.WaitVisible(e.opts.ButtonSelector, chromedp.ByQuery),
		chromedp.WaitEnabled(e.opts.ButtonSelector, chromedp.ByQuery),
		chromedp.Click(e.opts.ButtonSelector, chromedp.ByQuery),
		chromedp.WaitVisible(e.opts.ConfirmSelector, chromedp.ByQuery),
	}
}
