// Package lock serializes stackup operations that change the host, using an
// advisory flock on a file in the stackup home directory.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// FileName is the lock file created in the stackup home directory.
const FileName = "stackup.lock"

// ErrHeld is returned when another process holds the lock.
var ErrHeld = errors.New("another stackup operation is in progress")

// HeldError reports the lock holder when it can be read.
type HeldError struct {
	Path string
	PID  int
}

func (e *HeldError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("%s (pid %d holds %s)", ErrHeld, e.PID, e.Path)
	}
	return fmt.Sprintf("%s (%s is locked)", ErrHeld, e.Path)
}

func (e *HeldError) Unwrap() error {
	return ErrHeld
}

var flockFn = unix.Flock

// FileLock is an exclusive advisory lock. It is not safe for concurrent use.
type FileLock struct {
	path string
	file *os.File
}

// New returns a lock on path. The lock is not acquired.
func New(path string) *FileLock {
	return &FileLock{path: path}
}

// Acquire takes the lock without blocking. When another process holds it,
// the returned error wraps ErrHeld.
func (l *FileLock) Acquire() error {
	if l.file != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := flockFn(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return &HeldError{Path: l.path, PID: readPID(l.path)}
		}
		return fmt.Errorf("failed to lock %s: %w", l.path, err)
	}

	// The holder's PID is informational only.
	_ = file.Truncate(0)
	_, _ = file.Seek(0, 0)
	_, _ = fmt.Fprintf(file, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))

	l.file = file
	return nil
}

// Release unlocks the file. The file stays in place so every process
// locks the same inode. Safe to call when not held.
func (l *FileLock) Release() error {
	if l.file == nil {
		return nil
	}

	_ = flockFn(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil

	return err
}

// With runs fn while holding the lock at path.
func With(path string, fn func() error) error {
	l := New(path)
	if err := l.Acquire(); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// Held reports whether a process holds the lock at path, and the PID it
// recorded. The file is not created or modified.
func Held(path string) (int, bool) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return 0, false
	}
	defer file.Close()

	if err := flockFn(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return readPID(path), true
		}
		return 0, false
	}
	_ = flockFn(int(file.Fd()), unix.LOCK_UN)
	return 0, false
}

// readPID returns the PID recorded in the lock file, or 0. The file keeps
// the last holder's PID after release.
func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if v, ok := strings.CutPrefix(line, "pid="); ok {
			pid, err := strconv.Atoi(strings.TrimSpace(v))
			if err == nil {
				return pid
			}
		}
	}
	return 0
}
