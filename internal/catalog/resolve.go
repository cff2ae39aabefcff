package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "slotbot/internal/log"
	"slotbot/internal/model"
)

var (
	ErrEventNotFound  = errors.New("event not found")
	ErrAmbiguousEvent = errors.New("ambiguous event")
)

// Searcher is the catalog query the resolver depends on. *Client
// implements it.
type Searcher interface {
	Search(ctx context.Context, weekdayID int) ([]Candidate, error)
}

// Resolver turns an intent into a concrete, time-stamped occurrence.
type Resolver struct {
	search     Searcher
	weekdayIDs map[string]int
	loc        *time.Location
	now        func() time.Time
}

// NewResolver creates a Resolver. weekdayIDs is keyed by canonical weekday
// name ("Monday"); loc is the zone the user's times refer to.
func NewResolver(s Searcher, weekdayIDs map[string]int, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{
		search:     s,
		weekdayIDs: weekdayIDs,
		loc:        loc,
		now:        time.Now,
	}
}

// SetClock overrides the resolver's notion of "now".
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Resolve finds the next upcoming occurrence matching intent.
func (r *Resolver) Resolve(ctx context.Context, intent model.Intent) (model.Occurrence, error) {
	return r.resolve(ctx, intent, r.now(), false)
}

// ResolveNext finds the occurrence that follows after on the intent's
// weekly cadence, i.e. next week's instance of the event that started at
// after.
func (r *Resolver) ResolveNext(ctx context.Context, intent model.Intent, after time.Time) (model.Occurrence, error) {
	return r.resolve(ctx, intent, after, true)
}

// ResolveSuccessor finds next week's occurrence of a fired entry. The
// anchor is the fired event's start; entries stored without one are
// anchored on the first weekday/time instant at or after their sign-up
// opened, which is the event that sign-up belonged to. A successor must
// open its sign-up after the fired one.
func (r *Resolver) ResolveSuccessor(ctx context.Context, fired model.Occurrence) (model.Occurrence, error) {
	anchor, err := r.anchor(fired)
	if err != nil {
		return model.Occurrence{}, err
	}
	next, err := r.resolve(ctx, fired.Intent(), anchor, true)
	if err != nil {
		return model.Occurrence{}, err
	}
	if next.SignUpStart <= fired.SignUpStart {
		return model.Occurrence{}, fmt.Errorf("%w: next %s sign-up opens %s, not after %s", ErrEventNotFound,
			next.Activity, next.FireAt().In(r.loc).Format(time.RFC3339), fired.FireAt().In(r.loc).Format(time.RFC3339))
	}
	return next, nil
}

func (r *Resolver) anchor(fired model.Occurrence) (time.Time, error) {
	if fired.Start != nil && !fired.Start.IsZero() {
		return *fired.Start, nil
	}
	day, err := ParseWeekday(fired.Weekday)
	if err != nil {
		return time.Time{}, err
	}
	clock, err := ParseClock(fired.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	return nextWeekly(day, clock, fired.FireAt().Add(-time.Second), r.loc)
}

type match struct {
	cand     Candidate
	start    time.Time
	facility string
}

func (r *Resolver) resolve(ctx context.Context, intent model.Intent, after time.Time, exact bool) (model.Occurrence, error) {
	day, err := ParseWeekday(intent.Weekday)
	if err != nil {
		return model.Occurrence{}, err
	}
	clock, err := ParseClock(intent.Time)
	if err != nil {
		return model.Occurrence{}, err
	}
	id, ok := r.weekdayIDs[day.String()]
	if !ok {
		return model.Occurrence{}, fmt.Errorf("no catalog id configured for %s", day)
	}

	var expected time.Time
	if exact {
		expected, err = nextWeekly(day, clock, after, r.loc)
		if err != nil {
			return model.Occurrence{}, err
		}
	}

	cands, err := r.search.Search(ctx, id)
	if err != nil {
		return model.Occurrence{}, fmt.Errorf("search %s: %w", day, err)
	}

	activity := strings.ToLower(strings.TrimSpace(intent.Activity))
	facility := strings.ToLower(strings.TrimSpace(intent.Facility))

	var matches []match
	for _, c := range cands {
		if !strings.Contains(strings.ToLower(c.SportName), activity) {
			continue
		}
		fac, ok := matchFacility(c.FacilityNames, facility)
		if !ok {
			continue
		}
		start, err := c.StartAt()
		if err != nil {
			appLog.Debug("skipping catalog entry", "reason", err.Error())
			continue
		}
		local := start.In(r.loc)
		if !clock.Matches(local) || local.Weekday() != day {
			continue
		}
		if exact {
			if !start.Equal(expected) {
				continue
			}
		} else if !start.After(after) {
			continue
		}
		matches = append(matches, match{cand: c, start: local, facility: fac})
	}

	if len(matches) == 0 {
		return model.Occurrence{}, fmt.Errorf("%w: %s %s %s at %q", ErrEventNotFound, intent.Activity, day, clock, intent.Facility)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].start.Before(matches[j].start) })
	best := matches[0]
	if dup := sameStart(matches); len(dup) > 1 {
		names := make([]string, len(dup))
		for i, m := range dup {
			names[i] = fmt.Sprintf("%s @ %s", m.cand.SportName, m.facility)
		}
		return model.Occurrence{}, fmt.Errorf("%w: %d candidates at %s: %s",
			ErrAmbiguousEvent, len(dup), best.start.Format("Mon 2006-01-02 15:04"), strings.Join(names, "; "))
	}

	start := best.start
	return model.Occurrence{
		Activity:    best.cand.SportName,
		Weekday:     day.String(),
		StartTime:   clock.String(),
		Facility:    best.facility,
		Weekly:      intent.Weekly,
		Start:       &start,
		SignUpStart: best.cand.SignUpFrom,
		SignUpEnd:   best.cand.SignUpTo,
		URL:         best.cand.URL,
	}, nil
}

// matchFacility returns the first facility name containing frag.
func matchFacility(names []string, frag string) (string, bool) {
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), frag) {
			return n, true
		}
	}
	return "", false
}

// sameStart returns the leading matches that share the earliest start,
// collapsing duplicates of the same catalog entry.
func sameStart(sorted []match) []match {
	out := []match{sorted[0]}
	seen := map[string]bool{sorted[0].cand.URL: true}
	for _, m := range sorted[1:] {
		if !m.start.Equal(sorted[0].start) {
			break
		}
		if seen[m.cand.URL] {
			continue
		}
		seen[m.cand.URL] = true
		out = append(out, m)
	}
	return out
}

var rruleDays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// nextWeekly returns the first day/clock instant in loc strictly after
// after. Civil time is kept across DST changes.
func nextWeekly(day time.Weekday, clock model.Clock, after time.Time, loc *time.Location) (time.Time, error) {
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   after.In(loc),
		Byweekday: []rrule.Weekday{rruleDays[day]},
		Byhour:    []int{clock.Hour},
		Byminute:  []int{clock.Minute},
		Bysecond:  []int{0},
		Count:     3,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("weekly rule: %w", err)
	}
	next := r.After(after, false)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("weekly rule: no instance after %s", after)
	}
	return next, nil
}
