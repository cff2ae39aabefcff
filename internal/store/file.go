package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"slotbot/internal/model"
)

// File keeps the schedule as a single JSON array. Writes go to a temp file
// in the same directory and are renamed over the target, so a concurrent
// Load sees either the old or the new array. The highest ID ever assigned
// lives next to it in "<path>.id".
type File struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

type highWaterFile struct {
	HighWater int `json:"high_water"`
}

func NewFile(fsys afero.Fs, path string) *File {
	return &File{fs: fsys, path: path}
}

func (f *File) Path() string { return f.path }

func (f *File) Close() error { return nil }

func (f *File) idPath() string { return f.path + ".id" }

// Load returns an empty schedule when the file does not exist.
func (f *File) Load(ctx context.Context) ([]model.Occurrence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return []model.Occurrence{}, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", f.path, err)
	}

	entries := []model.Occurrence{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", f.path, err)
	}
	return entries, nil
}

func (f *File) Save(ctx context.Context, entries []model.Occurrence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entries == nil {
		entries = []model.Occurrence{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeAtomic(f.path, data)
}

// HighWater returns 0 when no ID was ever recorded.
func (f *File) HighWater(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readHighWater()
}

// SetHighWater records id unless a larger mark is already stored.
func (f *File) SetHighWater(ctx context.Context, id int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.readHighWater()
	if err != nil {
		return err
	}
	if id <= cur {
		return nil
	}
	data, err := json.Marshal(highWaterFile{HighWater: id})
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}
	return f.writeAtomic(f.idPath(), data)
}

func (f *File) readHighWater() (int, error) {
	data, err := afero.ReadFile(f.fs, f.idPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("store: read %s: %w", f.idPath(), err)
	}
	var hw highWaterFile
	if err := json.Unmarshal(data, &hw); err != nil {
		return 0, fmt.Errorf("store: decode %s: %w", f.idPath(), err)
	}
	return hw.HighWater, nil
}

func (f *File) writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := f.fs.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	tmp, err := afero.TempFile(f.fs, dir, ".schedule-*.tmp")
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer f.fs.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := f.fs.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := f.fs.Rename(tmpName, target); err != nil {
		return fmt.Errorf("store: replace %s: %w", target, err)
	}
	return nil
}
