package pgctl

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"

	"github.com/gmr/pg-auto-failover/pkg/types"
)

// RealController drives a genuine local PostgreSQL install: process
// lifecycle through the pg_ctl binary, everything else through SQL
// issued over a lazily opened *sql.DB.
type RealController struct {
	PGData      string
	PGPort      int
	PgCtlBinary string // defaults to "pg_ctl" on PATH
	PgRewindBin string // defaults to "pg_rewind" on PATH
	Timeout     time.Duration

	db *sql.DB
}

// NewReal returns a RealController bound to the given PGDATA/port,
// with a default command timeout of 30 seconds.
func NewReal(pgdata string, port int) *RealController {
	return &RealController{
		PGData:      pgdata,
		PGPort:      port,
		PgCtlBinary: "pg_ctl",
		PgRewindBin: "pg_rewind",
		Timeout:     30 * time.Second,
	}
}

func (c *RealController) conn(ctx context.Context) (*sql.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	dsn := fmt.Sprintf("host=localhost port=%d dbname=postgres sslmode=disable", c.PGPort)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, types.NewError(types.ErrKindPgControllerFailed, "pgctl.conn", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, types.NewError(types.ErrKindPgControllerFailed, "pgctl.conn", err)
	}
	c.db = db
	return db, nil
}

func (c *RealController) pgCtl(ctx context.Context, args ...string) error {
	execCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, c.PgCtlBinary, append([]string{"-D", c.PGData}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return types.NewError(types.ErrKindPgControllerFailed, "pgctl.pgCtl",
			fmt.Errorf("%s %v: %w: %s", c.PgCtlBinary, args, err, stderr.String()))
	}
	return nil
}

func (c *RealController) Probe(ctx context.Context) (Probe, error) {
	execCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, c.PgCtlBinary, "-D", c.PGData, "status")
	running := cmd.Run() == nil

	p := Probe{IsRunning: running}
	if !running {
		return p, nil
	}

	db, err := c.conn(ctx)
	if err != nil {
		return p, err
	}

	var inRecovery bool
	if err := db.QueryRowContext(ctx, "SELECT pg_is_in_recovery()").Scan(&inRecovery); err != nil {
		return p, types.NewError(types.ErrKindPgControllerFailed, "pgctl.Probe", err)
	}

	if inRecovery {
		// On a standby, pg_current_wal_lsn() errors out (it is a
		// primary-only function); the lag a standby reports is the
		// gap between what it has received and what it has replayed.
		row := db.QueryRowContext(ctx, "SELECT pg_last_wal_receive_lsn()::text")
		_ = row.Scan(&p.WalLSN)

		row = db.QueryRowContext(ctx,
			"SELECT COALESCE(pg_wal_lsn_diff(pg_last_wal_receive_lsn(), pg_last_wal_replay_lsn()), 0)::bigint")
		_ = row.Scan(&p.WalLagBytes)
	} else {
		row := db.QueryRowContext(ctx, "SELECT pg_current_wal_lsn()::text")
		_ = row.Scan(&p.WalLSN)

		row = db.QueryRowContext(ctx, "SELECT sync_state FROM pg_stat_replication LIMIT 1")
		_ = row.Scan(&p.SyncState)

		row = db.QueryRowContext(ctx, "SELECT count(*) > 0 FROM pg_stat_replication")
		_ = row.Scan(&p.HasReplica)
	}

	return p, nil
}

func (c *RealController) HasReplica(ctx context.Context, replicationUser string) (bool, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return false, err
	}
	var count int
	err = db.QueryRowContext(ctx,
		"SELECT count(*) FROM pg_stat_replication WHERE usename = $1", replicationUser,
	).Scan(&count)
	if err != nil {
		return false, types.NewError(types.ErrKindPgControllerFailed, "pgctl.HasReplica", err)
	}
	return count > 0, nil
}

func (c *RealController) Start(ctx context.Context) error {
	return c.pgCtl(ctx, "-w", "start")
}

func (c *RealController) Stop(ctx context.Context) error {
	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
	return c.pgCtl(ctx, "-w", "-m", "fast", "stop")
}

func (c *RealController) Restart(ctx context.Context) error {
	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
	return c.pgCtl(ctx, "-w", "restart")
}

func (c *RealController) ReloadConf(ctx context.Context) error {
	return c.pgCtl(ctx, "reload")
}

func (c *RealController) Promote(ctx context.Context) error {
	return c.pgCtl(ctx, "-w", "promote")
}

func (c *RealController) RewindTo(ctx context.Context, primaryHost string, primaryPort int, user, password, slot string) error {
	execCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	source := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=postgres sslmode=disable",
		primaryHost, primaryPort, user, password)
	cmd := exec.CommandContext(execCtx, c.PgRewindBin, "-D", c.PGData, "--source-server="+source)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return types.NewError(types.ErrKindPgControllerFailed, "pgctl.RewindTo",
			fmt.Errorf("pg_rewind: %w: %s", err, stderr.String()))
	}
	return nil
}

func (c *RealController) InitStandby(ctx context.Context, replicationSource string) error {
	execCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "pg_basebackup",
		"-D", c.PGData, "-R", "-d", replicationSource)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return types.NewError(types.ErrKindPgControllerFailed, "pgctl.InitStandby",
			fmt.Errorf("pg_basebackup: %w: %s", err, stderr.String()))
	}
	return nil
}

func (c *RealController) exec(ctx context.Context, op, query string, args ...any) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return types.NewError(types.ErrKindPgControllerFailed, op, err)
	}
	return nil
}

func (c *RealController) AddDefaultSettings(ctx context.Context) error {
	return c.exec(ctx, "pgctl.AddDefaultSettings",
		"ALTER SYSTEM SET wal_level = 'replica'")
}

func (c *RealController) CreateReplicationSlot(ctx context.Context, name string) error {
	return c.exec(ctx, "pgctl.CreateReplicationSlot",
		"SELECT pg_create_physical_replication_slot($1)", name)
}

func (c *RealController) DropReplicationSlot(ctx context.Context, name string) error {
	return c.exec(ctx, "pgctl.DropReplicationSlot",
		"SELECT pg_drop_replication_slot($1)", name)
}

func (c *RealController) EnableSyncRep(ctx context.Context) error {
	return c.exec(ctx, "pgctl.EnableSyncRep",
		"ALTER SYSTEM SET synchronous_commit = 'on'")
}

func (c *RealController) DisableSyncRep(ctx context.Context) error {
	return c.exec(ctx, "pgctl.DisableSyncRep",
		"ALTER SYSTEM SET synchronous_commit = 'local'")
}

func (c *RealController) CreateMonitorUser(ctx context.Context, host, authMethod string) error {
	return c.exec(ctx, "pgctl.CreateMonitorUser",
		"CREATE ROLE pgautofailover_monitor LOGIN")
}

func (c *RealController) CreateReplicationUser(ctx context.Context, name, password string) error {
	return c.exec(ctx, "pgctl.CreateReplicationUser",
		"CREATE ROLE "+sanitizeIdentifier(name)+" LOGIN REPLICATION PASSWORD $1", password)
}

func (c *RealController) AddStandbyToHBA(ctx context.Context, host, password string) error {
	line := fmt.Sprintf("host replication pgautofailover_replicator %s/32 md5\n", host)

	hbaPath := filepath.Join(c.PGData, "pg_hba.conf")
	f, err := os.OpenFile(hbaPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return types.NewError(types.ErrKindPgControllerFailed, "pgctl.AddStandbyToHBA", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return types.NewError(types.ErrKindPgControllerFailed, "pgctl.AddStandbyToHBA", err)
	}
	if err := f.Close(); err != nil {
		return types.NewError(types.ErrKindPgControllerFailed, "pgctl.AddStandbyToHBA", err)
	}

	return c.ReloadConf(ctx)
}

// sanitizeIdentifier is a minimal defense against SQL identifier
// injection for the small set of names (replication role names) that
// must be interpolated directly since PostgreSQL does not support
// parameterized identifiers.
func sanitizeIdentifier(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_' {
			out = append(out, b)
		}
	}
	return string(out)
}
