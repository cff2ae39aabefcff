package schedule

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"slotbot/internal/model"
)

type memStore struct {
	mu        sync.Mutex
	entries   []model.Occurrence
	highWater int
	saves     int
	failErr   error
	// afterRead runs once Load has copied the entries, before it returns.
	afterRead func()
}

func (m *memStore) Load(context.Context) ([]model.Occurrence, error) {
	m.mu.Lock()
	out := make([]model.Occurrence, len(m.entries))
	copy(out, m.entries)
	hook := m.afterRead
	m.afterRead = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *memStore) HighWater(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highWater, nil
}

func (m *memStore) SetHighWater(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	if id > m.highWater {
		m.highWater = id
	}
	return nil
}

func (m *memStore) Save(_ context.Context, entries []model.Occurrence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.saves++
	m.entries = make([]model.Occurrence, len(entries))
	copy(m.entries, entries)
	return nil
}

func (m *memStore) snapshot() []model.Occurrence {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Occurrence, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *memStore) Path() string { return "" }
func (m *memStore) Close() error { return nil }

func occAt(sport string, fireAt int64) model.Occurrence {
	return model.Occurrence{Activity: sport, Weekday: "Tuesday", StartTime: "18:15", Facility: "Fieldhouse",
		SignUpStart: fireAt, SignUpEnd: fireAt + 3600, URL: "https://x/" + sport}
}

func sports(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Occurrence.Activity
	}
	return out
}

func mustAdd(t *testing.T, s *Scheduler, occ model.Occurrence) model.Occurrence {
	t.Helper()
	added, err := s.Add(context.Background(), occ)
	if err != nil {
		t.Fatalf("Add(%s): %v", occ.Activity, err)
	}
	return added
}

func TestListOrderedByFireTimeWithFIFOTies(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	s := New(st, nil, nil, Options{})
	mustAdd(t, s, occAt("c", 300))
	mustAdd(t, s, occAt("a", 100))
	mustAdd(t, s, occAt("tie1", 200))
	mustAdd(t, s, occAt("tie2", 200))
	mustAdd(t, s, occAt("tie3", 200))
	mustAdd(t, s, occAt("early", 50))

	want := []string{"early", "a", "tie1", "tie2", "tie3", "c"}
	first := s.List()
	if got := sports(first); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i, e := range first {
		if e.Position != i {
			t.Fatalf("position %d at index %d", e.Position, i)
		}
		if !e.FireAt.Equal(time.Unix(e.Occurrence.SignUpStart, 0)) {
			t.Fatalf("fire time mismatch for %s", e.Occurrence.Activity)
		}
	}

	// Listing twice without mutation is identical.
	if second := s.List(); !reflect.DeepEqual(first, second) {
		t.Fatalf("List not idempotent:\n%v\n%v", first, second)
	}

	var lazy []Entry
	for e := range s.All() {
		lazy = append(lazy, e)
	}
	if !reflect.DeepEqual(first, lazy) {
		t.Fatal("All() differs from List()")
	}

	// The store mirrors the queue order.
	persisted := st.snapshot()
	for i, o := range persisted {
		if o.Activity != want[i] {
			t.Fatalf("persisted[%d] = %s, want %s", i, o.Activity, want[i])
		}
	}
}

func TestAddAssignsStableIDs(t *testing.T) {
	t.Parallel()

	s := New(&memStore{}, nil, nil, Options{})
	a := mustAdd(t, s, occAt("a", 300))
	b := mustAdd(t, s, occAt("b", 100))
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("ids = %d, %d", a.ID, b.ID)
	}
	// b sorts first but keeps its ID.
	if got := s.List()[0].Occurrence.ID; got != 2 {
		t.Fatalf("head id = %d, want 2", got)
	}
}

func TestCancelByPosition(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	s := New(st, nil, nil, Options{})
	for i, name := range []string{"a", "b", "c"} {
		mustAdd(t, s, occAt(name, int64(100*(i+1))))
	}

	removed, err := s.Cancel(context.Background(), 1)
	if err != nil {
		t.Fatalf("Cancel(1): %v", err)
	}
	if removed.Activity != "b" {
		t.Fatalf("removed %s, want b", removed.Activity)
	}
	if got := sports(s.List()); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("after cancel = %v", got)
	}
	if len(st.snapshot()) != 2 {
		t.Fatalf("persisted %d entries, want 2", len(st.snapshot()))
	}

	for _, pos := range []int{-1, 2, 99} {
		saves := st.saves
		if _, err := s.Cancel(context.Background(), pos); !errors.Is(err, ErrInvalidPosition) {
			t.Fatalf("Cancel(%d) err = %v, want ErrInvalidPosition", pos, err)
		}
		if s.Len() != 2 || st.saves != saves {
			t.Fatalf("Cancel(%d) mutated state", pos)
		}
	}
}

func TestRemoveByID(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	s := New(st, nil, nil, Options{})
	a := mustAdd(t, s, occAt("a", 100))
	b := mustAdd(t, s, occAt("b", 50))

	if _, err := s.Remove(context.Background(), 42); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("Remove(42) err = %v", err)
	}
	if _, err := s.Remove(context.Background(), a.ID); err != nil {
		t.Fatalf("Remove(a): %v", err)
	}
	if _, err := s.Remove(context.Background(), a.ID); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("second Remove(a) err = %v", err)
	}
	got := st.snapshot()
	if len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("persisted = %+v", got)
	}
}

func TestMutationsRollBackOnStorageError(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	s := New(st, nil, nil, Options{})
	mustAdd(t, s, occAt("a", 100))
	mustAdd(t, s, occAt("b", 200))
	before := s.List()

	st.failErr = errors.New("disk full")
	if _, err := s.Add(context.Background(), occAt("c", 150)); !errors.Is(err, st.failErr) {
		t.Fatalf("Add err = %v", err)
	}
	if _, err := s.Cancel(context.Background(), 0); !errors.Is(err, st.failErr) {
		t.Fatalf("Cancel err = %v", err)
	}
	if !reflect.DeepEqual(before, s.List()) {
		t.Fatalf("state changed after failed mutations:\n%v\n%v", before, s.List())
	}

	st.failErr = nil
	c := mustAdd(t, s, occAt("c", 150))
	if c.ID != 3 {
		t.Fatalf("id after rollback = %d, want 3", c.ID)
	}
}

func TestLoadNumbersLegacyEntries(t *testing.T) {
	t.Parallel()

	st := &memStore{entries: []model.Occurrence{
		occAt("legacy1", 300),
		func() model.Occurrence { o := occAt("kept", 100); o.ID = 7; return o }(),
		occAt("legacy2", 200),
	}}
	s := New(st, nil, nil, Options{})
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ids := map[string]int{}
	for _, e := range s.List() {
		ids[e.Occurrence.Activity] = e.Occurrence.ID
	}
	want := map[string]int{"kept": 7, "legacy1": 8, "legacy2": 9}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	if st.saves != 1 {
		t.Fatalf("expected numbered entries to be written back once, saves = %d", st.saves)
	}
	if next := mustAdd(t, s, occAt("new", 400)); next.ID != 10 {
		t.Fatalf("next id = %d", next.ID)
	}
}

func TestReloadPicksUpExternalChanges(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	s := New(st, nil, nil, Options{})
	mustAdd(t, s, occAt("a", 100))

	other := New(st, nil, nil, Options{})
	if err := other.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	mustAdd(t, other, occAt("b", 50))

	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := sports(s.List()); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Fatalf("after reload = %v", got)
	}
}

func TestIDsAreNotReusedAcrossProcesses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := &memStore{}
	// Each CLI command is a fresh process that loads the store.
	open := func() *Scheduler {
		s := New(st, nil, nil, Options{})
		if err := s.Load(ctx); err != nil {
			t.Fatalf("Load: %v", err)
		}
		return s
	}

	first := open()
	mustAdd(t, first, occAt("a", 100))
	b := mustAdd(t, first, occAt("b", 200))

	if _, err := open().Remove(ctx, b.ID); err != nil {
		t.Fatalf("Remove(b): %v", err)
	}
	c := mustAdd(t, open(), occAt("c", 300))
	if c.ID == b.ID {
		t.Fatalf("c reused removed id %d", b.ID)
	}

	// A remove based on an old listing must not hit c.
	if _, err := open().Remove(ctx, b.ID); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("stale Remove(%d) err = %v, want ErrInvalidID", b.ID, err)
	}
	if got := sports(open().List()); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("after stale remove = %v", got)
	}
}

func TestLoadDiscardsReadRacingAWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := &memStore{}
	s := New(st, nil, nil, Options{})
	mustAdd(t, s, occAt("fired", 100))
	mustAdd(t, s, occAt("kept", 200))

	// The head is dispatched between Load's read and its apply.
	st.mu.Lock()
	st.afterRead = func() {
		if _, err := s.Cancel(ctx, 0); err != nil {
			t.Errorf("Cancel: %v", err)
		}
	}
	st.mu.Unlock()

	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := sports(s.List()); !reflect.DeepEqual(got, []string{"kept"}) {
		t.Fatalf("after reload = %v, want the removed entry to stay gone", got)
	}
}

func TestNextFireAt(t *testing.T) {
	t.Parallel()

	s := New(&memStore{}, nil, nil, Options{})
	if _, ok := s.NextFireAt(); ok {
		t.Fatal("empty schedule reported a fire time")
	}
	mustAdd(t, s, occAt("b", 200))
	mustAdd(t, s, occAt("a", 100))
	if at, ok := s.NextFireAt(); !ok || !at.Equal(time.Unix(100, 0)) {
		t.Fatalf("NextFireAt = %v, %v", at, ok)
	}
}
