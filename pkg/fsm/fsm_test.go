package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmr/pg-auto-failover/pkg/pgctl"
	"github.com/gmr/pg-auto-failover/pkg/types"
)

func newDeps(ctrl *pgctl.FakeController) Deps {
	return Deps{
		Controller:           ctrl,
		ReplicationSlotName:  "pgautofailover_standby",
		ReplicationUser:      "pgautofailover_replicator",
		ReplicationPassword:  "secret",
		PrimaryHost:          "node1",
		PrimaryPort:          5432,
		StandbyHost:          "node2",
		MonitorHost:          "monitor",
		MonitorAuthMethod:    "trust",
	}
}

func TestInitToSingleRunsStartThenSettingsThenMonitorUser(t *testing.T) {
	ctrl := pgctl.NewFake()
	got, err := Transition(context.Background(), types.NodeStateInit, types.NodeStateSingle, newDeps(ctrl))
	require.NoError(t, err)
	assert.Equal(t, types.NodeStateSingle, got)
	assert.Equal(t, []string{"Start", "AddDefaultSettings", "CreateMonitorUser"}, ctrl.Calls)
}

func TestSameStateTransitionIsNoop(t *testing.T) {
	ctrl := pgctl.NewFake()
	got, err := Transition(context.Background(), types.NodeStatePrimary, types.NodeStatePrimary, newDeps(ctrl))
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatePrimary, got)
	assert.Empty(t, ctrl.Calls)
}

// TestTransitionFailureLeavesCurrentRoleUnchanged is testable property 2:
// on any step failure, current_role must be reported unchanged and the
// error returned, never a partially-applied transition.
func TestTransitionFailureLeavesCurrentRoleUnchanged(t *testing.T) {
	ctrl := pgctl.NewFake()
	ctrl.FailOn["AddDefaultSettings"] = errors.New("disk full")

	got, err := Transition(context.Background(), types.NodeStateInit, types.NodeStateSingle, newDeps(ctrl))
	require.Error(t, err)
	assert.Equal(t, types.NodeStateInit, got)
	assert.Equal(t, types.ErrKindTransitionFailed, types.KindOf(err))
}

// TestUnknownEdgeIsRejected is testable property 3: for all (from,to)
// pairs not in the table, Transition returns an error and does not
// mutate state.
func TestUnknownEdgeIsRejected(t *testing.T) {
	ctrl := pgctl.NewFake()
	got, err := Transition(context.Background(), types.NodeStateSingle, types.NodeStatePrepPromotion, newDeps(ctrl))
	require.Error(t, err)
	assert.Equal(t, types.NodeStateSingle, got)
	assert.ErrorIs(t, err, types.ErrTransitionNotFound)
	assert.Empty(t, ctrl.Calls)
}

func TestWildcardMaintenanceEdgesStopAndResume(t *testing.T) {
	ctrl := pgctl.NewFake()
	ctrl.Running = true

	got, err := Transition(context.Background(), types.NodeStatePrimary, types.NodeStateMaintenance, newDeps(ctrl))
	require.NoError(t, err)
	assert.Equal(t, types.NodeStateMaintenance, got)
	assert.Equal(t, []string{"Stop"}, ctrl.Calls)

	got, err = Transition(context.Background(), types.NodeStateMaintenance, types.NodeStatePrimary, newDeps(ctrl))
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatePrimary, got)
	assert.Equal(t, []string{"Stop", "Start"}, ctrl.Calls)
}

// TestFailoverSequence is end-to-end scenario S3: SECONDARY with
// caught-up WAL, the monitor assigns PREP_PROMOTION then
// STANDBY_PROMOTED then PRIMARY in turn.
func TestFailoverSequence(t *testing.T) {
	ctrl := pgctl.NewFake()
	d := newDeps(ctrl)
	ctx := context.Background()

	role, err := Transition(ctx, types.NodeStateSecondary, types.NodeStatePrepPromotion, d)
	require.NoError(t, err)
	role, err = Transition(ctx, role, types.NodeStateStandbyPromoted, d)
	require.NoError(t, err)
	role, err = Transition(ctx, role, types.NodeStatePrimary, d)
	require.NoError(t, err)

	assert.Equal(t, types.NodeStatePrimary, role)
	assert.True(t, ctrl.Promoted)
}

func TestEnsureCurrentStateStartsStoppedPrimary(t *testing.T) {
	ctrl := pgctl.NewFake()
	err := EnsureCurrentState(context.Background(), types.NodeStatePrimary, newDeps(ctrl))
	require.NoError(t, err)
	assert.Contains(t, ctrl.Calls, "Start")
	assert.True(t, ctrl.Running)
}

func TestEnsureCurrentStateStopsRunningDemoted(t *testing.T) {
	ctrl := pgctl.NewFake()
	ctrl.Running = true
	err := EnsureCurrentState(context.Background(), types.NodeStateDemoted, newDeps(ctrl))
	require.NoError(t, err)
	assert.Contains(t, ctrl.Calls, "Stop")
	assert.False(t, ctrl.Running)
}
