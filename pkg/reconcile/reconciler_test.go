package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmr/pg-auto-failover/pkg/history"
	"github.com/gmr/pg-auto-failover/pkg/monitor"
	"github.com/gmr/pg-auto-failover/pkg/pgctl"
	"github.com/gmr/pg-auto-failover/pkg/pidfile"
	"github.com/gmr/pg-auto-failover/pkg/state"
	"github.com/gmr/pg-auto-failover/pkg/types"
)

func newTestLoop(t *testing.T, cfg *types.KeeperConfig, ctrl pgctl.Controller, mon monitor.Client) (*Loop, *state.Store, string) {
	t.Helper()
	dir := t.TempDir()

	st := state.New(filepath.Join(dir, "pg_autoctl.state"))
	require.NoError(t, st.Write(&types.KeeperState{
		CurrentRole:  types.NodeStateInit,
		AssignedRole: types.NodeStateInit,
	}))

	pidPath := filepath.Join(dir, "pg_autoctl.pid")
	guard := pidfile.New(pidPath)
	require.NoError(t, guard.Acquire())

	cfgPath := filepath.Join(dir, "pg_autoctl.cfg")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[pg_autoctl]\nformation = default\n"), 0644))

	ledger, err := history.Open(filepath.Join(dir, "pg_autoctl.history"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	return New(cfgPath, cfg, st, guard, ctrl, mon, ledger), st, pidPath
}

func baseConfig() *types.KeeperConfig {
	return &types.KeeperConfig{
		Formation:                      "default",
		Nodename:                       "node1",
		NetworkPartitionTimeoutSeconds: 10,
		PgSetup:                        types.PgSetup{PgPort: 5432},
	}
}

// TestColdBootAsSingle is end-to-end scenario S1: empty PGDATA, monitor
// returns SINGLE. After one tick: Postgres running, current_role SINGLE.
func TestColdBootAsSingle(t *testing.T) {
	ctrl := pgctl.NewFake()
	mon := &monitor.FakeClient{Assignments: []types.MonitorAssignment{
		{AssignedState: types.NodeStateSingle},
	}}
	loop, st, _ := newTestLoop(t, baseConfig(), ctrl, mon)

	outcome := loop.tick(context.Background())
	assert.NoError(t, outcome.err)
	assert.True(t, outcome.transitioned)

	got, err := st.Read()
	require.NoError(t, err)
	assert.Equal(t, types.NodeStateSingle, got.CurrentRole)
	assert.True(t, ctrl.Running)
	assert.Contains(t, ctrl.Calls, "AddDefaultSettings")
}

// TestPidConflictExitsWithoutWritingState is end-to-end scenario S6: an
// operator overwrites the pid file with another pid; on the next tick
// the keeper must exit via PidGuard failure without further writes.
func TestPidConflictExitsWithoutWritingState(t *testing.T) {
	ctrl := pgctl.NewFake()
	mon := &monitor.FakeClient{Assignments: []types.MonitorAssignment{{AssignedState: types.NodeStateSingle}}}
	loop, st, pidPath := newTestLoop(t, baseConfig(), ctrl, mon)

	before, err := st.Read()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(pidPath, []byte("999999\n"), 0644))

	outcome := loop.tick(context.Background())
	require.Error(t, outcome.err)
	assert.True(t, outcome.exit)
	assert.Equal(t, types.ErrKindPidConflict, types.KindOf(outcome.err))

	after, err := st.Read()
	require.NoError(t, err)
	assert.Equal(t, before.CurrentRole, after.CurrentRole, "no state write must occur after a pid conflict")
}

// TestReloadUpdatesTimeoutButNotFormation is end-to-end scenario S5: a
// SIGHUP-triggered reload picks up a changed reloadable field but never
// changes a non-reloadable one like formation.
func TestReloadUpdatesTimeoutButNotFormation(t *testing.T) {
	ctrl := pgctl.NewFake()
	mon := &monitor.FakeClient{Assignments: []types.MonitorAssignment{{AssignedState: types.NodeStateInit}}}
	cfg := baseConfig()
	loop, _, _ := newTestLoop(t, cfg, ctrl, mon)

	require.NoError(t, os.WriteFile(loop.configPath,
		[]byte("[pg_autoctl]\nformation = renamed\n\n[timeout]\nnetwork_partition_timeout_seconds = 30\n"), 0644))
	loop.RequestReload()

	loop.tick(context.Background())

	assert.Equal(t, 30, loop.cfg.NetworkPartitionTimeoutSeconds)
	assert.Equal(t, "default", loop.cfg.Formation, "formation is not reloadable")
}

// TestMonitorContactTimestampsNeverDecrease is testable property 4.
func TestMonitorContactTimestampsNeverDecrease(t *testing.T) {
	ctrl := pgctl.NewFake()
	ctrl.Running = true
	mon := &monitor.FakeClient{Assignments: []types.MonitorAssignment{
		{AssignedState: types.NodeStateSingle},
		{AssignedState: types.NodeStateSingle},
	}}
	loop, st, _ := newTestLoop(t, baseConfig(), ctrl, mon)

	loop.tick(context.Background())
	first, err := st.Read()
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	loop.tick(context.Background())
	second, err := st.Read()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, second.LastMonitorContact, first.LastMonitorContact)
}

// TestPartitionForcesDemoteTimeout is testable property 5 / scenario
// S4 at the reconcile-loop level: PRIMARY, monitor failing, no
// replica, past the timeout, must set assigned_role DEMOTE_TIMEOUT.
func TestPartitionForcesDemoteTimeout(t *testing.T) {
	ctrl := pgctl.NewFake()
	ctrl.Running = true
	ctrl.ReplicaUp = false
	mon := &monitor.FakeClient{Err: assertError{}}

	cfg := baseConfig()
	cfg.NetworkPartitionTimeoutSeconds = 5
	loop, st, _ := newTestLoop(t, cfg, ctrl, mon)

	existing, err := st.Read()
	require.NoError(t, err)
	existing.CurrentRole = types.NodeStatePrimary
	existing.AssignedRole = types.NodeStatePrimary
	existing.LastMonitorContact = time.Now().Add(-20 * time.Second).Unix()
	existing.LastSecondaryContact = time.Now().Add(-20 * time.Second).Unix()
	require.NoError(t, st.Write(existing))

	loop.tick(context.Background())

	after, err := st.Read()
	require.NoError(t, err)
	assert.Equal(t, types.NodeStateDemoteTimeout, after.AssignedRole)
}

type assertError struct{}

func (assertError) Error() string { return "monitor unreachable in test" }
