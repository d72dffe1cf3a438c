//go:build unix

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// FileLock is an exclusive advisory lock held on a file.
type FileLock struct {
	f *os.File
}

// TryLock attempts an exclusive file lock without blocking.
// The parent directory is created if needed. Returns ErrLocked if another
// holder has the lock.
func TryLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("%w: lock directory: %w", ErrIOFailure, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: open lock file: %w", ErrIOFailure, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("%w: acquire lock: %w", ErrIOFailure, err)
	}
	return &FileLock{f: f}, nil
}

// Release releases the file lock and closes the file.
func (l *FileLock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	_ = l.f.Close()
	l.f = nil
}
