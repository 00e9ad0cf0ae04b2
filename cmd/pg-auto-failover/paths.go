package main

import (
	"path/filepath"

	"github.com/gmr/pg-auto-failover/pkg/types"
)

// derivedPaths returns the three sibling files the persisted-state
// layout in spec §6 derives from PGDATA: the config file, the state
// file, and the PID file.
func derivedPaths(pgdata string) types.Paths {
	return types.Paths{
		Config: filepath.Join(pgdata, "pg_autoctl.cfg"),
		State:  filepath.Join(pgdata, "pg_autoctl.state"),
		Pid:    filepath.Join(pgdata, "pg_autoctl.pid"),
	}
}
