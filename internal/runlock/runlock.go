// Package runlock provides an exclusive, non-blocking, cross-process lock on
// a file. A batch holds it for its whole run so two batches never write the
// same tables concurrently.
//
// The lock is advisory (flock) and is released by the kernel when the
// holding process exits, so a crash never leaves a stale lock behind. The
// file itself is left in place and records the holder's pid.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("runlock: already held by another process")

// Lock is a held file lock.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the lock at path without blocking.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		return nil, errors.New("runlock: path must not be empty")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runlock: open %s: %w", path, err)
	}
	if err := tryLock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("runlock: lock %s: %w", path, err)
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{f: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks and closes the file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
