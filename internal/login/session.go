package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	appLog "slotbot/internal/log"
)

// Options configures the browser login. Selectors are CSS queries.
type Options struct {
	URL              string
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
	ReadySelector    string
	Headless         bool
	// Timeout bounds one login attempt. Zero means 90s.
	Timeout time.Duration
}

const defaultTimeout = 90 * time.Second

// Session is a browser tab that stays logged in for the lifetime of the
// process. Claims run in tabs derived from it so they share its cookies.
type Session struct {
	creds Credentials
	opts  Options

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// sem holds one token. Logins and claims take it in turn so a refresh
	// never races a click, and a waiter gives up when its context ends.
	sem chan struct{}
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() { <-s.sem }

// Open launches the browser and performs the first login. The browser
// lives until Close or until parent is done.
func Open(parent context.Context, creds Credentials, opts Options) (*Session, error) {
	if opts.URL == "" {
		return nil, errors.New("login: URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		creds:         creds,
		opts:          opts,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		sem:           make(chan struct{}, 1),
	}
	if err := s.Login(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Login fills in the login form and waits until the ready selector shows
// up. It is safe to call again on an existing session.
func (s *Session) Login() error {
	password, err := s.creds.Password()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(s.browserCtx, s.opts.Timeout)
	defer cancel()

	if err := s.acquire(ctx); err != nil {
		return fmt.Errorf("login: wait for browser: %w", err)
	}
	defer s.release()

	start := time.Now()
	tasks := chromedp.Tasks{
		chromedp.Navigate(s.opts.URL),
		chromedp.WaitVisible(s.opts.UsernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(s.opts.UsernameSelector, s.creds.Username, chromedp.ByQuery),
		chromedp.SendKeys(s.opts.PasswordSelector, password, chromedp.ByQuery),
		chromedp.Click(s.opts.SubmitSelector, chromedp.ByQuery),
		chromedp.WaitVisible(s.opts.ReadySelector, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("login: chromedp run failed: %w", err)
	}
	appLog.Info("logged in", "user", s.creds.Username, "took", time.Since(start).Round(time.Millisecond).String())
	return nil
}

// Do runs fn with a fresh tab of the logged-in browser. The tab is closed
// when fn returns or ctx is done. If a login holds the browser past ctx,
// Do returns ctx.Err() without calling fn.
func (s *Session) Do(ctx context.Context, fn func(tabCtx context.Context) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	defer cancel()

	// Tie the tab to the caller's deadline as well as the browser.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return fn(tabCtx)
}

// Close shuts the browser down.
func (s *Session) Close() {
	s.browserCancel()
	s.allocCancel()
}
