package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
)

const searchBody = `{"results":[{"sport_name":"Volleyball","facility_name":["Fieldhouse"],"from_date":"2026-03-03T17:15:00Z","oe_from_date_stamp":1772471700,"to_date_stamp":1772554500,"url":"https://x/1"}]}`

func TestSearchUsesWeekdayFilterAndCache(t *testing.T) {
	t.Parallel()

	var (
		hits    atomic.Int32
		failing atomic.Bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if got := r.URL.Query().Get("f[0]"); got != "weekday:4006" {
			t.Errorf("weekday filter = %q", got)
		}
		if failing.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	c := NewClient(Options{
		SearchURL: srv.URL + "/event_search?format=json",
		Timeout:   2 * time.Second,
		CacheDir:  "/cache",
		Fs:        afero.NewMemMapFs(),
	})
	ctx := context.Background()

	for i, step := range []string{"fresh", "not modified", "server error"} {
		if step == "server error" {
			failing.Store(true)
		}
		got, err := c.Search(ctx, 4006)
		if err != nil {
			t.Fatalf("%s: Search: %v", step, err)
		}
		if len(got) != 1 || got[0].URL != "https://x/1" || got[0].SignUpFrom != 1772471700 {
			t.Fatalf("%s: unexpected results %+v", step, got)
		}
		if int(hits.Load()) != i+1 {
			t.Fatalf("%s: hits = %d", step, hits.Load())
		}
	}
}

func TestSearchWithoutCacheFailsOnServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Options{SearchURL: srv.URL, Fs: afero.NewMemMapFs()})
	if _, err := c.Search(context.Background(), 3999); err == nil {
		t.Fatal("expected error")
	}
}

func TestWeekdayURL(t *testing.T) {
	t.Parallel()

	c := NewClient(Options{SearchURL: "https://h/s?format=json"})
	if got := c.weekdayURL(4000); got != "https://h/s?format=json&f[0]=weekday:4000" {
		t.Fatalf("weekdayURL = %q", got)
	}
	c = NewClient(Options{SearchURL: "https://h/s"})
	if got := c.weekdayURL(4000); got != "https://h/s?f[0]=weekday:4000" {
		t.Fatalf("weekdayURL = %q", got)
	}
}

func TestCandidateStartAt(t *testing.T) {
	t.Parallel()

	c := Candidate{FromDate: "2026-03-03T17:15:00+00:00"}
	got, err := c.StartAt()
	if err != nil {
		t.Fatalf("StartAt: %v", err)
	}
	if !got.Equal(time.Date(2026, 3, 3, 17, 15, 0, 0, time.UTC)) {
		t.Fatalf("StartAt = %v", got)
	}
	if _, err := (Candidate{FromDate: "tomorrow"}).StartAt(); err == nil {
		t.Fatal("expected parse error")
	}
}
