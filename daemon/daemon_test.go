package daemon

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartWritesAndRemovesPIDFile(t *testing.T) {
	manager := New(t.TempDir())

	var seen string
	err := manager.Start("worker", func(ctx context.Context) error {
		data, err := os.ReadFile(manager.PIDFile("worker"))
		require.NoError(t, err)
		seen = string(data)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, strconv.Itoa(os.Getpid()), seen)

	_, err = os.Stat(manager.PIDFile("worker"))
	assert.True(t, os.IsNotExist(err))
}

func TestStartRefusesRunningWorker(t *testing.T) {
	manager := New(t.TempDir())

	// a pidfile pointing at this very process counts as running
	require.NoError(t, os.WriteFile(manager.PIDFile("worker"),
		[]byte(strconv.Itoa(os.Getpid())), 0o644))

	err := manager.Start("worker", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestStartIgnoresStalePIDFile(t *testing.T) {
	manager := New(t.TempDir())

	// no live process has this pid
	require.NoError(t, os.WriteFile(manager.PIDFile("worker"), []byte("999999"), 0o644))

	ran := false
	err := manager.Start("worker", func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestStartPropagatesWorkerError(t *testing.T) {
	manager := New(t.TempDir())

	boom := errors.New("boom")
	err := manager.Start("worker", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestStartSwallowsCancellation(t *testing.T) {
	manager := New(t.TempDir())

	err := manager.Start("worker", func(ctx context.Context) error {
		return context.Canceled
	})
	assert.NoError(t, err)
}

func TestStopWithoutPIDFile(t *testing.T) {
	manager := New(t.TempDir())
	assert.Error(t, manager.Stop("worker"))
}
