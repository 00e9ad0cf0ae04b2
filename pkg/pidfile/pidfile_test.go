package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmr/pg-auto-failover/pkg/types"
)

func TestAcquireThenCheckSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg_autoctl.pid")
	g := New(path)

	require.NoError(t, g.Acquire())
	assert.NoError(t, g.Check())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data[:len(data)-1]))
}

func TestAcquireRejectsLiveHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg_autoctl.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644))

	g := New(path)
	err := g.Acquire()
	require.Error(t, err)
	assert.Equal(t, types.ErrKindPidConflict, types.KindOf(err))
}

func TestAcquireOverwritesStalePid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg_autoctl.pid")
	// pid 999999 is vanishingly unlikely to exist on any test host.
	require.NoError(t, os.WriteFile(path, []byte("999999\n"), 0644))

	g := New(path)
	require.NoError(t, g.Acquire())
	assert.NoError(t, g.Check())
}

func TestCheckFailsWhenFileOverwrittenByImpostor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg_autoctl.pid")
	g := New(path)
	require.NoError(t, g.Acquire())

	require.NoError(t, os.WriteFile(path, []byte("999999\n"), 0644))

	err := g.Check()
	require.Error(t, err)
	assert.Equal(t, types.ErrKindPidConflict, types.KindOf(err))
}

func TestReleaseRemovesOwnedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg_autoctl.pid")
	g := New(path)
	require.NoError(t, g.Acquire())

	require.NoError(t, g.Release())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReleaseIsNoopWhenNotOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg_autoctl.pid")
	g := New(path)
	require.NoError(t, g.Acquire())

	require.NoError(t, os.WriteFile(path, []byte("999999\n"), 0644))
	require.NoError(t, g.Release())

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
