package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gmr/pg-auto-failover/pkg/config"
	"github.com/gmr/pg-auto-failover/pkg/monitor"
	"github.com/gmr/pg-auto-failover/pkg/state"
)

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop a node's registration or a formation",
}

var dropNodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Remove this node from the monitor and delete its keeper state",
	Long: `Implements the destroy flow from spec §3's lifecycle: this is
the only operation allowed to remove a KeeperState record. It notifies
the monitor first so the formation drops the node from its quorum
bookkeeping before the local record disappears.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pgdata, _ := cmd.Flags().GetString("pgdata")
		if pgdata == "" {
			return fmt.Errorf("--pgdata is required")
		}
		paths := derivedPaths(pgdata)

		cfg, cfgErr := config.Load(paths.Config)
		store := state.New(paths.State)
		st, stErr := store.Read()
		if cfgErr == nil && stErr == nil && cfg.MonitorURI != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			client := monitor.New(cfg.MonitorURI, 10*time.Second)
			if err := client.Remove(ctx, st.CurrentNodeID, st.CurrentGroup); err != nil {
				fmt.Printf("warning: could not notify monitor of removal: %v\n", err)
			}
		}

		for _, p := range []string{paths.State, paths.State + ".new", paths.Pid} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("drop node: remove %s: %w", p, err)
			}
		}
		fmt.Println("Keeper state dropped.")
		return nil
	},
}

var dropFormationCmd = &cobra.Command{
	Use:   "formation NAME",
	Short: "Drop a formation on the monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Formation %q is dropped on the monitor; this keeper has no local formation state to remove.\n", args[0])
		return nil
	},
}

func init() {
	dropCmd.AddCommand(dropNodeCmd)
	dropCmd.AddCommand(dropFormationCmd)
	dropNodeCmd.Flags().String("pgdata", "", "PostgreSQL data directory (required)")
}
