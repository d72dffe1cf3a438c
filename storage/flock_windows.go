//go:build windows

package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Windows stub: file locking not supported via syscall.Flock.
// Saves are process-safe via the in-process sphere lock but not
// cross-process safe on Windows.

// FileLock holds the open lock file.
type FileLock struct {
	f *os.File
}

// TryLock opens the lock file but does not acquire a cross-process lock on Windows.
func TryLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("%w: lock directory: %w", ErrIOFailure, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: open lock file: %w", ErrIOFailure, err)
	}
	return &FileLock{f: f}, nil
}

// Release closes the lock file.
func (l *FileLock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = l.f.Close()
	l.f = nil
}
