package sqldb

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

var ErrLocked = errors.New("store is locked by another process")

// FileLock guards a local database file against a second pipeline process.
type FileLock struct {
	lock *flock.Flock
}

// TryLock acquires path without blocking.
func TryLock(path string) (*FileLock, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return &FileLock{lock: lock}, nil
}

func (l *FileLock) Path() string {
	return l.lock.Path()
}

func (l *FileLock) Release() error {
	return l.lock.Unlock()
}
