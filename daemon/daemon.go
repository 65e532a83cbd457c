// Package daemon provides pidfile-based process management for the
// worker commands: start runs a worker in the foreground under a
// pidfile, stop signals a running worker by its pidfile.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Worker is a worker main loop. It must return when the context is
// cancelled.
type Worker func(ctx context.Context) error

// Manager tracks worker processes through pidfiles in one directory.
type Manager struct {
	runPath string
}

// New creates a manager keeping pidfiles under runPath.
func New(runPath string) *Manager {
	return &Manager{runPath: runPath}
}

// PIDFile returns the pidfile path for a named worker.
func (m *Manager) PIDFile(name string) string {
	return filepath.Join(m.runPath, name+".pid")
}

// Start writes the pidfile and runs the worker in the foreground until
// it returns or the process receives SIGINT or SIGTERM. The pidfile is
// removed on exit. Starting a worker whose pidfile points at a live
// process fails.
func (m *Manager) Start(name string, worker Worker) error {
	if pid, err := m.readPID(name); err == nil && alive(pid) {
		return fmt.Errorf("%s is already running with pid %d", name, pid)
	}

	if err := os.MkdirAll(m.runPath, 0o755); err != nil {
		return fmt.Errorf("cannot create run directory: %w", err)
	}
	path := m.PIDFile(name)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("cannot write pidfile: %w", err)
	}
	defer os.Remove(path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := worker(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop sends SIGTERM to the worker named by its pidfile and removes the
// pidfile. A missing pidfile means the worker is not running.
func (m *Manager) Stop(name string) error {
	pid, err := m.readPID(name)
	if err != nil {
		return fmt.Errorf("%s is not running", name)
	}

	process, err := os.FindProcess(pid)
	if err == nil {
		if err := process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("cannot stop %s (pid %d): %w", name, pid, err)
		}
	}

	os.Remove(m.PIDFile(name))
	return nil
}

func (m *Manager) readPID(name string) (int, error) {
	data, err := os.ReadFile(m.PIDFile(name))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("corrupt pidfile for %s: %w", name, err)
	}
	return pid, nil
}

// alive reports whether a process with the pid exists.
func alive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
