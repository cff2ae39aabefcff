package schedule

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	appLog "slotbot/internal/log"
	"slotbot/internal/model"
	"slotbot/internal/store"
)

// Scheduler is the single owner of the pending queue and of write access
// to its Store.
type Scheduler struct {
	mu     sync.Mutex
	queue  []item // ordered by (fireAt, seq)
	seq    uint64
	nextID int
	// gen counts store writes; Load discards a read that raced one.
	gen uint64

	store    store.Store
	exec     Executor
	resolver Resolver

	wake chan struct{}
	opts Options
}

// New creates a Scheduler. exec and res may be nil for processes that only
// edit the schedule and never call Run.
func New(st store.Store, exec Executor, res Resolver, opts Options) *Scheduler {
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = defaultClaimTimeout
	}
	if opts.MaxSleep <= 0 {
		opts.MaxSleep = defaultMaxSleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		store:    st,
		exec:     exec,
		resolver: res,
		wake:     make(chan struct{}, 1),
		opts:     opts,
		nextID:   1,
	}
}

// Load replaces the in-memory queue with the store contents. Entries
// without an ID (older files) are numbered and written back so the IDs
// shown by `show` stay valid for a later `remove`. IDs continue above the
// store's high-water mark, never above just the pending entries.
func (s *Scheduler) Load(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		gen := s.gen
		s.mu.Unlock()

		entries, err := s.store.Load(ctx)
		if err != nil {
			return err
		}
		hw, err := s.store.HighWater(ctx)
		if err != nil {
			return err
		}

		s.mu.Lock()
		if s.gen != gen {
			// A dispatch or mutation wrote the store after the read above.
			s.mu.Unlock()
			continue
		}
		err = s.replaceLocked(ctx, entries, hw)
		s.mu.Unlock()
		return err
	}
}

func (s *Scheduler) replaceLocked(ctx context.Context, entries []model.Occurrence, hw int) error {
	s.queue = s.queue[:0]
	s.nextID = hw + 1
	for _, o := range entries {
		if o.ID >= s.nextID {
			s.nextID = o.ID + 1
		}
	}
	numbered := false
	for _, o := range entries {
		if o.ID <= 0 {
			o.ID = s.nextID
			s.nextID++
			numbered = true
		}
		s.insertLocked(o)
	}
	s.notify()

	if s.nextID-1 > hw {
		if err := s.store.SetHighWater(ctx, s.nextID-1); err != nil {
			return fmt.Errorf("save schedule: %w", err)
		}
	}
	if numbered {
		return s.persistLocked(ctx)
	}
	return nil
}

// Reload is Load for a store that another process rewrote while Run is
// active.
func (s *Scheduler) Reload(ctx context.Context) error {
	before := s.Len()
	if err := s.Load(ctx); err != nil {
		return err
	}
	appLog.Debug("schedule reloaded", "before", before, "after", s.Len())
	return nil
}

// Add assigns the next ID, enqueues occ by its claim-window opening and
// persists. On a storage error the insert is undone and the error returned.
// Past-due entries are accepted and fire on the next dispatch pass.
func (s *Scheduler) Add(ctx context.Context, occ model.Occurrence) (model.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	occ.ID = s.nextID
	if err := s.store.SetHighWater(ctx, occ.ID); err != nil {
		return model.Occurrence{}, fmt.Errorf("save schedule: %w", err)
	}
	s.nextID++
	idx := s.insertLocked(occ)

	// The ID is spent once the mark is stored, even if this write fails.
	if err := s.persistLocked(ctx); err != nil {
		s.removeAtLocked(idx)
		return model.Occurrence{}, err
	}
	s.notify()
	return occ, nil
}

// Cancel removes the entry at position of the current ordered listing.
func (s *Scheduler) Cancel(ctx context.Context, position int) (model.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if position < 0 || position >= len(s.queue) {
		return model.Occurrence{}, fmt.Errorf("%w %d (have %d entries)", ErrInvalidPosition, position, len(s.queue))
	}
	return s.cancelLocked(ctx, position)
}

// Remove removes the pending entry with the given stable ID.
func (s *Scheduler) Remove(ctx context.Context, id int) (model.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, it := range s.queue {
		if it.occ.ID == id {
			return s.cancelLocked(ctx, i)
		}
	}
	return model.Occurrence{}, fmt.Errorf("%w %d", ErrInvalidID, id)
}

func (s *Scheduler) cancelLocked(ctx context.Context, idx int) (model.Occurrence, error) {
	removed := s.removeAtLocked(idx)
	if err := s.persistLocked(ctx); err != nil {
		s.restoreLocked(idx, removed)
		return model.Occurrence{}, err
	}
	s.notify()
	return removed.occ, nil
}

// List returns a fresh ordered view of the pending entries.
func (s *Scheduler) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.queue))
	for i, it := range s.queue {
		out[i] = Entry{Position: i, Occurrence: it.occ, FireAt: it.fireAt}
	}
	return out
}

// All yields the same view as List lazily. Each range over the returned
// sequence takes a new snapshot.
func (s *Scheduler) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range s.List() {
			if !yield(e) {
				return
			}
		}
	}
}

// Occurrences returns the pending entries in order.
func (s *Scheduler) Occurrences() []model.Occurrence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// NextFireAt returns the fire time of the head entry.
func (s *Scheduler) NextFireAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].fireAt, true
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Run is the dispatch loop. It returns only when ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	appLog.Info("dispatch loop started", "pending", s.Len())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		occ, due, wait := s.popDue(ctx)
		if due {
			s.fire(ctx, occ)
			continue
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			appLog.Info("dispatch loop stopped", "pending", s.Len())
			return ctx.Err()
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// popDue removes and returns the head entry if it is due. Otherwise it
// returns how long to sleep. The removal is persisted before the claim
// runs so a crash mid-claim never causes a second attempt.
func (s *Scheduler) popDue(ctx context.Context) (model.Occurrence, bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return model.Occurrence{}, false, s.opts.MaxSleep
	}
	head := s.queue[0]
	now := s.opts.Now()
	if head.fireAt.After(now) {
		wait := head.fireAt.Sub(now)
		if wait > s.opts.MaxSleep {
			wait = s.opts.MaxSleep
		}
		return model.Occurrence{}, false, wait
	}

	s.removeAtLocked(0)
	if err := s.persistLocked(ctx); err != nil {
		appLog.Error("persist after dispatch failed", err, "id", head.occ.ID)
	}
	return head.occ, true, 0
}

func (s *Scheduler) fire(ctx context.Context, occ model.Occurrence) {
	late := s.opts.Now().Sub(occ.FireAt())
	appLog.Info("claim firing", "id", occ.ID, "sport", occ.Activity, "weekday", occ.Weekday,
		"start_time", occ.StartTime, "facility", occ.Facility, "late", late.Round(time.Millisecond).String())

	res := FireResult{Fired: occ}
	if s.exec == nil {
		res.ClaimErr = ErrNoExecutor
	} else {
		claimCtx, cancel := context.WithTimeout(ctx, s.opts.ClaimTimeout)
		res.ClaimErr = s.exec.Claim(claimCtx, occ.URL)
		cancel()
	}
	if res.ClaimErr != nil {
		appLog.Error("claim failed", res.ClaimErr, "id", occ.ID, "sport", occ.Activity, "url", occ.URL)
	} else {
		appLog.Info("claim succeeded", "id", occ.ID, "sport", occ.Activity)
	}

	if occ.Weekly {
		succ, err := s.rearm(ctx, occ)
		if err != nil {
			res.RearmErr = err
		} else {
			res.Successor = &succ
		}
	}

	if s.opts.OnFired != nil {
		s.opts.OnFired(res)
	}
}

// enqueue inserts a resolved successor from the dispatch loop. Unlike Add
// a storage error keeps the entry in memory; the next successful write
// catches the store up.
func (s *Scheduler) enqueue(ctx context.Context, occ model.Occurrence) model.Occurrence {
	s.mu.Lock()
	defer s.mu.Unlock()

	occ.ID = s.nextID
	s.nextID++
	if err := s.store.SetHighWater(ctx, occ.ID); err != nil {
		appLog.Error("persist id mark after rearm failed", err, "id", occ.ID)
	}
	s.insertLocked(occ)
	if err := s.persistLocked(ctx); err != nil {
		appLog.Error("persist after rearm failed", err, "id", occ.ID)
	}
	s.notify()
	return occ
}

// insertLocked places occ after every entry with the same or an earlier
// fire time and returns its index.
func (s *Scheduler) insertLocked(occ model.Occurrence) int {
	s.seq++
	it := item{occ: occ, fireAt: occ.FireAt(), seq: s.seq}
	idx := sort.Search(len(s.queue), func(i int) bool {
		return s.queue[i].fireAt.After(it.fireAt)
	})
	s.queue = append(s.queue, item{})
	copy(s.queue[idx+1:], s.queue[idx:])
	s.queue[idx] = it
	return idx
}

func (s *Scheduler) removeAtLocked(idx int) item {
	it := s.queue[idx]
	s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	return it
}

func (s *Scheduler) restoreLocked(idx int, it item) {
	s.queue = append(s.queue, item{})
	copy(s.queue[idx+1:], s.queue[idx:])
	s.queue[idx] = it
}

func (s *Scheduler) snapshotLocked() []model.Occurrence {
	out := make([]model.Occurrence, len(s.queue))
	for i, it := range s.queue {
		out[i] = it.occ
	}
	return out
}

func (s *Scheduler) persistLocked(ctx context.Context) error {
	s.gen++
	if err := s.store.Save(ctx, s.snapshotLocked()); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
