package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrNotRunning is returned when no daemon is recorded in the PID file.
var ErrNotRunning = errors.New("watcher daemon not running")

// StartDaemon re-executes the current binary with args in a new session,
// writes its PID to pidFile, and sends its output to logFile.
func StartDaemon(pidFile, logFile string, args ...string) (int, error) {
	running, err := IsDaemonRunning(pidFile)
	if err != nil {
		return 0, fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		return 0, fmt.Errorf("daemon already running (PID file: %s)", pidFile)
	}

	logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer logF.Close()

	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to get executable path: %w", err)
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdout = logF
	cmd.Stderr = logF
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon process: %w", err)
	}

	pid := cmd.Process.Pid
	if err := WritePID(pidFile, pid); err != nil {
		_ = cmd.Process.Kill()
		return 0, err
	}

	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("failed to release process: %w", err)
	}
	return pid, nil
}

// RunDaemon runs fn until SIGTERM or SIGINT, then removes pidFile. It is
// called in the daemon child.
func RunDaemon(ctx context.Context, pidFile string, fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := WritePID(pidFile, os.Getpid()); err != nil {
		return err
	}
	defer os.Remove(pidFile)

	return fn(ctx)
}

// StopDaemon sends SIGTERM to the daemon and waits up to timeout for it to
// exit.
func StopDaemon(pidFile string, timeout time.Duration) error {
	pid, err := ReadPID(pidFile)
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		os.Remove(pidFile)
		return fmt.Errorf("%w: process %d: %v", ErrNotRunning, pid, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if process.Signal(syscall.Signal(0)) != nil {
			os.Remove(pidFile)
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("process %d did not exit within %s", pid, timeout)
}

// IsDaemonRunning checks the PID file and whether its process is alive. A
// stale PID file is removed.
func IsDaemonRunning(pidFile string) (bool, error) {
	pid, err := ReadPID(pidFile)
	if errors.Is(err, ErrNotRunning) {
		return false, nil
	}
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			return false, nil
		}
		return false, err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidFile)
		return false, nil
	}
	return true, nil
}

// ReadPID returns the PID stored in pidFile, or ErrNotRunning when the file
// does not exist.
func ReadPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotRunning
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

// WritePID records pid in pidFile.
func WritePID(pidFile string, pid int) error {
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(pid)+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}
