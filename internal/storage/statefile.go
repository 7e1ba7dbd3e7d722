package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"

	"cpamm/internal/storage/memory"
)

// ErrStateFileLocked is returned when another process holds the state file.
var ErrStateFileLocked = errors.New("state file is in use by another process")

const lockRetryDelay = 50 * time.Millisecond

type stateFile struct {
	memory.Snapshot
	UpdatedAt string `json:"updated_at"`
}

// StateFile is a memory store backed by a JSON file. It holds an exclusive
// lock on path+".lock" from open until Close, so the snapshot it loaded stays
// the latest one for as long as it writes.
type StateFile struct {
	*memory.Store
	lock *flock.Flock
}

// OpenStateFile locks path, loads it into a memory store and persists the
// store back to it before every commit. A missing file starts an empty store.
// It waits for a held lock until ctx is done, then fails with
// ErrStateFileLocked.
func OpenStateFile(ctx context.Context, path string) (*StateFile, error) {
	if err := ensureDir(path); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("lock state file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrStateFileLocked, path)
	}

	snap, err := loadStateFile(path)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	store, err := memory.Restore(snap)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("restore %s: %w", path, err)
	}
	store.SetCommitHook(func(snap memory.Snapshot) error {
		return saveStateFile(path, snap)
	})
	return &StateFile{Store: store, lock: lock}, nil
}

// Close releases the file lock. The store must not be used afterwards.
func (f *StateFile) Close() {
	f.Store.Close()
	f.lock.Unlock()
}

func loadStateFile(path string) (memory.Snapshot, error) {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return memory.Snapshot{}, nil
		}
		return memory.Snapshot{}, fmt.Errorf("stat state file: %w", err)
	}
	if stat.IsDir() {
		return memory.Snapshot{}, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("read state file: %w", err)
	}
	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return memory.Snapshot{}, fmt.Errorf("parse state file: %w", err)
	}
	return sf.Snapshot, nil
}

func saveStateFile(path string, snap memory.Snapshot) error {
	if err := ensureDir(path); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(stateFile{
		Snapshot:  snap,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
