// Package fsm implements the keeper's node state machine: a partial
// function from (current_role, assigned_role) to an ordered action
// program over pgctl.Controller. Where the teacher's WarrenFSM
// (pkg/manager/fsm.go) keys a big switch on an opaque Command.Op string
// and returns interface{}, this FSM keys a Go map on the (from,to)
// state pair itself and returns a typed error — same "one table, one
// executor" shape, generalized from an opaque command string to the
// tagged NodeState the domain already has.
package fsm

import (
	"context"
	"fmt"

	"github.com/gmr/pg-auto-failover/pkg/pgctl"
	"github.com/gmr/pg-auto-failover/pkg/types"
)

// Deps bundles everything an action step may need. All policy lives in
// the action program below; Deps only carries the adapters and the
// handful of config values a rewind/replication action requires.
type Deps struct {
	Controller pgctl.Controller

	ReplicationSlotName string
	ReplicationUser      string
	ReplicationPassword  string

	PrimaryHost string
	PrimaryPort int
	StandbyHost string

	MonitorHost       string
	MonitorAuthMethod string
}

// Edge is the (from,to) key the transition table is indexed by.
type Edge struct {
	From types.NodeState
	To   types.NodeState
}

// step is one action in a transition's program.
type step func(ctx context.Context, d Deps) error

// table holds the program for every explicitly supported edge. Edges
// not present here, and not covered by the MAINTENANCE wildcard rules
// handled directly in Transition, fail with ErrTransitionNotFound.
var table = map[Edge][]step{
	{types.NodeStateInit, types.NodeStateSingle}: {
		func(ctx context.Context, d Deps) error { return d.Controller.Start(ctx) },
		func(ctx context.Context, d Deps) error { return d.Controller.AddDefaultSettings(ctx) },
		func(ctx context.Context, d Deps) error {
			return d.Controller.CreateMonitorUser(ctx, d.MonitorHost, d.MonitorAuthMethod)
		},
	},
	{types.NodeStateSingle, types.NodeStateWaitPrimary}: {
		func(ctx context.Context, d Deps) error {
			return d.Controller.CreateReplicationSlot(ctx, d.ReplicationSlotName)
		},
		func(ctx context.Context, d Deps) error {
			return d.Controller.CreateReplicationUser(ctx, d.ReplicationUser, d.ReplicationPassword)
		},
		func(ctx context.Context, d Deps) error {
			return d.Controller.AddStandbyToHBA(ctx, d.StandbyHost, d.ReplicationPassword)
		},
	},
	{types.NodeStateWaitPrimary, types.NodeStatePrimary}: {
		func(ctx context.Context, d Deps) error { return d.Controller.EnableSyncRep(ctx) },
	},
	{types.NodeStatePrimary, types.NodeStateDraining}: {
		func(ctx context.Context, d Deps) error { return d.Controller.DisableSyncRep(ctx) },
	},
	{types.NodeStateDraining, types.NodeStateDemoted}: {
		func(ctx context.Context, d Deps) error { return d.Controller.Stop(ctx) },
	},
	{types.NodeStateDemoted, types.NodeStateCatchingUp}: {
		func(ctx context.Context, d Deps) error {
			return d.Controller.RewindTo(ctx, d.PrimaryHost, d.PrimaryPort, d.ReplicationUser, d.ReplicationPassword, d.ReplicationSlotName)
		},
		func(ctx context.Context, d Deps) error {
			return d.Controller.InitStandby(ctx, fmt.Sprintf("host=%s port=%d", d.PrimaryHost, d.PrimaryPort))
		},
		func(ctx context.Context, d Deps) error { return d.Controller.Start(ctx) },
	},
	{types.NodeStateCatchingUp, types.NodeStateSecondary}: {
		func(ctx context.Context, d Deps) error { return d.Controller.ReloadConf(ctx) },
	},
	{types.NodeStateSecondary, types.NodeStatePrepPromotion}: {
		func(ctx context.Context, d Deps) error { return d.Controller.DisableSyncRep(ctx) },
	},
	{types.NodeStatePrepPromotion, types.NodeStateStandbyPromoted}: {
		func(ctx context.Context, d Deps) error { return d.Controller.Promote(ctx) },
	},
	{types.NodeStateStandbyPromoted, types.NodeStatePrimary}: {
		func(ctx context.Context, d Deps) error { return d.Controller.EnableSyncRep(ctx) },
	},
	{types.NodeStatePrimary, types.NodeStateDemoteTimeout}: {
		func(ctx context.Context, d Deps) error { return d.Controller.Stop(ctx) },
	},
}

// Transition runs the action program bound to (from,to). On success it
// returns the new current role (equal to to); on any step's failure it
// returns the error and the caller must leave current_role unchanged.
//
// The PRIMARY -> DEMOTE_TIMEOUT edge is forced: it is only ever reached
// when PartitionDetector has set assigned_role, never by an operator or
// the monitor directly, but it is dispatched through the same table and
// executor as every other edge.
func Transition(ctx context.Context, from, to types.NodeState, d Deps) (types.NodeState, error) {
	if from == to {
		return from, nil
	}

	if to == types.NodeStateMaintenance {
		if err := d.Controller.Stop(ctx); err != nil {
			return from, types.NewError(types.ErrKindTransitionFailed, "fsm.Transition", err)
		}
		return to, nil
	}
	if from == types.NodeStateMaintenance {
		if err := d.Controller.Start(ctx); err != nil {
			return from, types.NewError(types.ErrKindTransitionFailed, "fsm.Transition", err)
		}
		return to, nil
	}

	steps, ok := table[Edge{From: from, To: to}]
	if !ok {
		return from, types.NewError(types.ErrKindTransitionFailed, "fsm.Transition",
			fmt.Errorf("%w: %s -> %s", types.ErrTransitionNotFound, from, to))
	}

	for _, s := range steps {
		if err := s(ctx, d); err != nil {
			return from, types.NewError(types.ErrKindTransitionFailed, "fsm.Transition", err)
		}
	}
	return to, nil
}

// EnsureCurrentState idempotently reconciles side effects for a node
// that is not transitioning this tick (current_role == assigned_role):
// Postgres must be running iff the current role expects it running.
func EnsureCurrentState(ctx context.Context, role types.NodeState, d Deps) error {
	probe, err := d.Controller.Probe(ctx)
	if err != nil {
		return types.NewError(types.ErrKindPgControllerFailed, "fsm.EnsureCurrentState", err)
	}

	wantsRunning := role != types.NodeStateDemoted &&
		role != types.NodeStateDemoteTimeout &&
		role != types.NodeStateMaintenance &&
		role != types.NodeStateInit

	if wantsRunning && !probe.IsRunning {
		if err := d.Controller.Start(ctx); err != nil {
			return types.NewError(types.ErrKindPgControllerFailed, "fsm.EnsureCurrentState", err)
		}
	}
	if !wantsRunning && probe.IsRunning {
		if err := d.Controller.Stop(ctx); err != nil {
			return types.NewError(types.ErrKindPgControllerFailed, "fsm.EnsureCurrentState", err)
		}
	}
	return nil
}
