package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gmr/pg-auto-failover/pkg/config"
	"github.com/gmr/pg-auto-failover/pkg/history"
	"github.com/gmr/pg-auto-failover/pkg/log"
	"github.com/gmr/pg-auto-failover/pkg/monitor"
	"github.com/gmr/pg-auto-failover/pkg/pgctl"
	"github.com/gmr/pg-auto-failover/pkg/pidfile"
	"github.com/gmr/pg-auto-failover/pkg/reconcile"
	"github.com/gmr/pg-auto-failover/pkg/state"
	"github.com/gmr/pg-auto-failover/pkg/statusserver"
	"github.com/gmr/pg-auto-failover/pkg/supervisor"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the keeper: the reconcile loop and the status server, supervised",
	Long: `Acquires the PID file (fatal PidConflict if another keeper
already holds this PGDATA), then hands the reconcile loop and status
server to the Supervisor, which installs the SIGHUP/SIGTERM/SIGINT/
SIGQUIT handlers from spec §6 and runs both until a graceful or fast
stop is requested.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pgdata, _ := cmd.Flags().GetString("pgdata")
		if pgdata == "" {
			return fmt.Errorf("--pgdata is required")
		}
		paths := derivedPaths(pgdata)

		cfg, err := config.Load(paths.Config)
		if err != nil {
			return err
		}

		guard := pidfile.New(paths.Pid)
		if err := guard.Acquire(); err != nil {
			return err
		}
		defer guard.Release()

		store := state.New(paths.State)
		ctrl := pgctl.NewReal(cfg.PgSetup.PgData, cfg.PgSetup.PgPort)

		var monClient monitor.Client
		if cfg.MonitorURI != "" {
			monClient = monitor.New(cfg.MonitorURI, 5*time.Second)
		} else {
			monClient = &monitor.FakeClient{Err: fmt.Errorf("no monitor configured")}
		}

		ledger, err := history.Open(paths.State + ".history")
		if err != nil {
			return err
		}
		defer ledger.Close()

		loop := reconcile.New(paths.Config, cfg, store, guard, ctrl, monClient, ledger)
		status := statusserver.New(paths.Config, fmt.Sprintf("%s:%d", cfg.HTTPD.ListenAddress, cfg.HTTPD.Port), store)

		sup := supervisor.New(loop, status)

		log.Info(fmt.Sprintf("pg_autoctl keeper starting for %s/%s, pid %d", cfg.Formation, cfg.Nodename, os.Getpid()))
		return sup.Run(context.Background())
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running keeper to stop",
	RunE: func(cmd *cobra.Command, args []string) error {
		fast, _ := cmd.Flags().GetBool("fast")
		sig := syscall.SIGTERM
		if fast {
			sig = syscall.SIGQUIT
		}
		return signalRunningKeeper(cmd, sig)
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask a running keeper to reload its configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalRunningKeeper(cmd, syscall.SIGHUP)
	},
}

// signalRunningKeeper reads the PID file directly (rather than
// through pidfile.Guard, which models ownership from the keeper's own
// side) and delivers sig to whatever process it names.
func signalRunningKeeper(cmd *cobra.Command, sig syscall.Signal) error {
	pgdata, _ := cmd.Flags().GetString("pgdata")
	if pgdata == "" {
		return fmt.Errorf("--pgdata is required")
	}
	data, err := os.ReadFile(derivedPaths(pgdata).Pid)
	if err != nil {
		return fmt.Errorf("no running keeper found for %s: %w", pgdata, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("malformed pid file: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return nil
}

func init() {
	runCmd.Flags().String("pgdata", "", "PostgreSQL data directory (required)")
	stopCmd.Flags().String("pgdata", "", "PostgreSQL data directory (required)")
	stopCmd.Flags().Bool("fast", false, "Fast stop (SIGQUIT) instead of graceful stop (SIGTERM)")
	reloadCmd.Flags().String("pgdata", "", "PostgreSQL data directory (required)")
}
