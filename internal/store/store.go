// Package store persists the pending schedule.
//
// A Store holds exactly the not-yet-fired entries: Save overwrites the
// whole record and Load returns what the last successful Save wrote.
// There is no history.
package store

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"slotbot/internal/config"
	"slotbot/internal/model"
)

type Store interface {
	Load(ctx context.Context) ([]model.Occurrence, error)
	Save(ctx context.Context, entries []model.Occurrence) error
	// HighWater is the largest ID ever assigned, 0 if none. It never
	// decreases, so IDs of fired or removed entries are not handed out
	// again by a later process.
	HighWater(ctx context.Context) (int, error)
	SetHighWater(ctx context.Context, id int) error
	// Path is the on-disk location, used for change watching.
	Path() string
	Close() error
}

// Open returns the driver selected in cfg.
func Open(cfg config.StoreConfig) (Store, error) {
	path := config.ExpandPath(cfg.Path)
	switch cfg.Driver {
	case "", config.DriverFile:
		return NewFile(afero.NewOsFs(), path), nil
	case config.DriverSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
