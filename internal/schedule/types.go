package schedule

import (
	"context"
	"errors"
	"time"

	"slotbot/internal/model"
)

var (
	ErrInvalidPosition = errors.New("invalid position")
	ErrInvalidID       = errors.New("invalid ID")
	ErrNoResolver      = errors.New("no resolver configured")
	ErrNoExecutor      = errors.New("no claim executor configured")
	// ErrStaleSuccessor means the resolver returned an occurrence whose
	// claim window does not open after the fired one's.
	ErrStaleSuccessor  = errors.New("successor does not open after the fired entry")
)

// Executor performs the claim for one entry. Implementations must honor
// ctx; the scheduler bounds every call with Options.ClaimTimeout.
type Executor interface {
	Claim(ctx context.Context, target string) error
}

// Resolver finds next week's occurrence of a fired weekly entry.
type Resolver interface {
	ResolveSuccessor(ctx context.Context, fired model.Occurrence) (model.Occurrence, error)
}

// Entry is one row of the ordered pending view. Position is only valid
// until the next mutation; ID is stable.
type Entry struct {
	Position   int
	Occurrence model.Occurrence
	FireAt     time.Time
}

// FireResult describes one dispatch, reported to Options.OnFired.
type FireResult struct {
	Fired    model.Occurrence
	ClaimErr error
	// Successor is set when a weekly entry was re-armed.
	Successor *model.Occurrence
	RearmErr  error
}

type Options struct {
	// ClaimTimeout bounds a single Executor call. Default 1m.
	ClaimTimeout time.Duration
	// MaxSleep caps one wait of the dispatch loop. Default 60s.
	MaxSleep time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
	// OnFired, if set, is called after every dispatch (and rearm).
	OnFired func(FireResult)
}

const (
	defaultClaimTimeout = time.Minute
	defaultMaxSleep     = 60 * time.Second
)

type item struct {
	occ    model.Occurrence
	fireAt time.Time
	seq    uint64
}
