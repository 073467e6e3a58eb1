package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "home", FileName)

	l := New(path)
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if pid := readPID(path); pid != os.Getpid() {
		t.Errorf("readPID = %d, want %d", pid, os.Getpid())
	}

	// A second lock on the same file is refused while the first is held.
	other := New(path)
	err := other.Acquire()
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
	var held *HeldError
	if !errors.As(err, &held) || held.PID != os.Getpid() {
		t.Errorf("expected holder pid in error, got %v", err)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("lock file should stay after release: %v", err)
	}

	if err := other.Acquire(); err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	other.Release()
}

func TestRelease_OpenedBeforeReleaseStillExcludes(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	first := New(path)
	if err := first.Acquire(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// A second process has opened the file but not locked it yet.
	waiting, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		t.Fatalf("open lock file: %v", err)
	}
	defer waiting.Close()

	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := unix.Flock(int(waiting.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		t.Fatalf("flock after release: %v", err)
	}
	defer unix.Flock(int(waiting.Fd()), unix.LOCK_UN)

	third := New(path)
	if err := third.Acquire(); !errors.Is(err, ErrHeld) {
		third.Release()
		t.Fatalf("expected ErrHeld while the waiting handle holds the lock, got %v", err)
	}
}

func TestReleaseWithoutAcquire(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), FileName))
	if err := l.Release(); err != nil {
		t.Errorf("Release on unheld lock: %v", err)
	}
}

func TestWith(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	ran := false
	err := With(path, func() error {
		ran = true
		if err := New(path).Acquire(); !errors.Is(err, ErrHeld) {
			t.Errorf("lock not held inside With: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With failed: %v", err)
	}
	if !ran {
		t.Error("fn did not run")
	}

	sentinel := errors.New("boom")
	if err := With(path, func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("With should return fn's error, got %v", err)
	}
}

func TestReadPID_Missing(t *testing.T) {
	if pid := readPID(filepath.Join(t.TempDir(), "none")); pid != 0 {
		t.Errorf("readPID = %d, want 0", pid)
	}
}

func TestHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	if _, held := Held(path); held {
		t.Error("missing lock file reported as held")
	}

	l := New(path)
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	pid, held := Held(path)
	if !held || pid != os.Getpid() {
		t.Errorf("Held = (%d, %v), want (%d, true)", pid, held, os.Getpid())
	}

	l.Release()
	if _, held := Held(path); held {
		t.Error("released lock reported as held")
	}
	if readPID(path) != os.Getpid() {
		t.Error("lock file should keep the last holder's PID")
	}
}
