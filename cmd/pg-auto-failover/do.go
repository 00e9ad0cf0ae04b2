package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gmr/pg-auto-failover/pkg/config"
	"github.com/gmr/pg-auto-failover/pkg/pgctl"
)

var doCmd = &cobra.Command{
	Use:   "do PRIMITIVE",
	Short: "Invoke one low-level PgController primitive directly",
	Long: `"do" bypasses the FSM entirely and calls a single
PgController operation, for operator debugging and the test scenarios
in spec §8 that exercise one primitive in isolation. Primitives:
probe, start, stop, restart, reload, promote.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pgdata, _ := cmd.Flags().GetString("pgdata")
		cfg, err := config.Load(derivedPaths(pgdata).Config)
		if err != nil {
			return err
		}
		ctrl := pgctl.NewReal(cfg.PgSetup.PgData, cfg.PgSetup.PgPort)
		ctx := context.Background()

		switch args[0] {
		case "probe":
			probe, err := ctrl.Probe(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("is_running: %t\nwal_lsn: %s\nsync_state: %s\n", probe.IsRunning, probe.WalLSN, probe.SyncState)
			return nil
		case "start":
			return ctrl.Start(ctx)
		case "stop":
			return ctrl.Stop(ctx)
		case "restart":
			return ctrl.Restart(ctx)
		case "reload":
			return ctrl.ReloadConf(ctx)
		case "promote":
			return ctrl.Promote(ctx)
		default:
			return fmt.Errorf("unknown primitive %q: expected probe, start, stop, restart, reload, or promote", args[0])
		}
	},
}

func init() {
	doCmd.Flags().String("pgdata", "", "PostgreSQL data directory (required)")
}
