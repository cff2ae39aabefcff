package login

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func TestCredentialsRoundTrip(t *testing.T) {
	keyring.MockInit()

	c := Credentials{Service: "slotbot-test", Username: "jane"}
	if _, err := c.Password(); !errors.Is(err, ErrNoPassword) {
		t.Fatalf("Password before store: err = %v, want ErrNoPassword", err)
	}
	if err := c.StorePassword("hunter2"); err != nil {
		t.Fatalf("StorePassword: %v", err)
	}
	got, err := c.Password()
	if err != nil {
		t.Fatalf("Password: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("password = %q", got)
	}
}

func TestCredentialsKeyringFailure(t *testing.T) {
	origGet, origSet := keyringGet, keyringSet
	t.Cleanup(func() { keyringGet, keyringSet = origGet, origSet })

	boom := errors.New("dbus unavailable")
	keyringGet = func(string, string) (string, error) { return "", boom }
	keyringSet = func(string, string, string) error { return boom }

	c := Credentials{Service: "slotbot", Username: "jane"}
	if err := c.StorePassword("x"); !errors.Is(err, boom) {
		t.Fatalf("StorePassword err = %v", err)
	}
	if _, err := c.Password(); !errors.Is(err, boom) || errors.Is(err, ErrNoPassword) {
		t.Fatalf("Password err = %v", err)
	}
}

func TestCredentialsRequireUsername(t *testing.T) {
	c := Credentials{Service: "slotbot"}
	if err := c.StorePassword("x"); err == nil {
		t.Fatal("expected error without username")
	}
	if _, err := c.Password(); err == nil {
		t.Fatal("expected error without username")
	}
}

func TestValidateSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"0 */6 * * *", false},
		{"@every 30m", false},
		{"30 0 */6 * * *", false},
		{"every six hours", true},
		{"", true},
	}
	for _, tt := range tests {
		err := ValidateSpec(tt.spec)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSpec(%q) err = %v, wantErr %v", tt.spec, err, tt.wantErr)
		}
	}
}

func TestRefresherNext(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	r, err := NewRefresher("0 */6 * * *", loc, func() error { return nil }, nil)
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}
	from := time.Date(2026, 3, 3, 7, 30, 0, 0, loc)
	want := time.Date(2026, 3, 3, 12, 0, 0, 0, loc)
	if got := r.Next(from); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}

	if _, err := NewRefresher("nope", loc, func() error { return nil }, nil); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestRefresherSkipsWhileBusy(t *testing.T) {
	t.Parallel()

	logins := 0
	busy := true
	r, err := NewRefresher("@every 1h", time.UTC, func() error {
		logins++
		return nil
	}, func() bool { return busy })
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}

	r.tick()
	if logins != 0 {
		t.Fatalf("logged in %d times while busy", logins)
	}
	busy = false
	r.tick()
	if logins != 1 {
		t.Fatalf("logged in %d times when idle, want 1", logins)
	}
}

func TestDoGivesUpWhileLoginHoldsBrowser(t *testing.T) {
	t.Parallel()

	s := &Session{sem: make(chan struct{}, 1)}
	s.sem <- struct{}{} // a login in progress

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	start := time.Now()
	err := s.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do err = %v, want DeadlineExceeded", err)
	}
	if called {
		t.Fatal("fn ran without the browser")
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("Do returned after %v", took)
	}
}
