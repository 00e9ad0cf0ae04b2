// Package pgctl is the keeper's adapter to a local PostgreSQL
// instance: process lifecycle through pg_ctl/pg_rewind (os/exec, in the
// idiom of the teacher's ExecChecker) and role/configuration changes
// through SQL (database/sql with github.com/lib/pq, in the idiom of
// instance_controller.go's direct driver use). No policy lives here;
// the FSM decides which calls to make and in what order.
package pgctl

import (
	"context"
)

// Probe is a point-in-time snapshot of the local instance, returned by
// Controller.Probe.
type Probe struct {
	IsRunning   bool
	WalLSN      string
	SyncState   string
	HasReplica  bool
	WalLagBytes int64
}

// Controller is the PgController adapter contract: probe, lifecycle,
// role transitions, configuration, and user/auth management, each
// returning only ok/err plus whatever structured data the caller
// needs. All policy about when to call which method lives in the FSM.
type Controller interface {
	Probe(ctx context.Context) (Probe, error)
	HasReplica(ctx context.Context, replicationUser string) (bool, error)

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	ReloadConf(ctx context.Context) error

	Promote(ctx context.Context) error
	RewindTo(ctx context.Context, primaryHost string, primaryPort int, user, password, slot string) error
	InitStandby(ctx context.Context, replicationSource string) error

	AddDefaultSettings(ctx context.Context) error
	CreateReplicationSlot(ctx context.Context, name string) error
	DropReplicationSlot(ctx context.Context, name string) error
	EnableSyncRep(ctx context.Context) error
	DisableSyncRep(ctx context.Context) error

	CreateMonitorUser(ctx context.Context, host, authMethod string) error
	CreateReplicationUser(ctx context.Context, name, password string) error
	AddStandbyToHBA(ctx context.Context, host, password string) error
}
