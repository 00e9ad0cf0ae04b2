package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gmr/pg-auto-failover/pkg/config"
	"github.com/gmr/pg-auto-failover/pkg/monitor"
	"github.com/gmr/pg-auto-failover/pkg/state"
	"github.com/gmr/pg-auto-failover/pkg/types"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a monitor, a postgres node, or a formation",
}

var createMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Initialize the monitor this keeper will report to",
	Long: `The monitor is the remote coordinator component (§1: out of
scope for this keeper core). This command only checks that a monitor
connection URI was given and prints the "create postgres" invocation
that joins a node to it; it writes nothing to disk and does not start
a monitor process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		uri, _ := cmd.Flags().GetString("monitor-uri")
		if uri == "" {
			return types.NewError(types.ErrKindConfigInvalid, "create.monitor",
				fmt.Errorf("--monitor-uri is required"))
		}
		fmt.Printf("Monitor URI: %s\n", uri)
		fmt.Println("Run 'pg_autoctl create postgres --monitor " + uri + " ...' on each node to join it.")
		return nil
	},
}

var createPostgresCmd = &cobra.Command{
	Use:   "postgres",
	Short: "Register this node and prepare its keeper state",
	Long: `Implements the create flow from spec §3: builds the
KeeperConfig from flags, persists it, registers with the monitor (when
--monitor is given) to obtain a node id, group and assigned state, and
writes the initial KeeperState with current_role=INIT and assigned_role
set to the monitor's reply (INIT when no monitor is given). A later "pg_autoctl run" drives the
first reconcile tick, which the FSM's INIT -> SINGLE (or -> WAIT_PRIMARY)
edge advances from there.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfigFromFlags(cmd)
		if err != nil {
			return err
		}

		if err := config.Save(cfg.Path.Config, cfg); err != nil {
			return err
		}

		st := &types.KeeperState{
			CurrentRole:  types.NodeStateInit,
			AssignedRole: types.NodeStateInit,
		}

		if cfg.MonitorURI != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			client := monitor.New(cfg.MonitorURI, 10*time.Second)
			nodeID, group, assigned, err := client.Register(ctx, monitor.RegisterRequest{
				Formation:    cfg.Formation,
				NodeName:     cfg.Nodename,
				Port:         cfg.PgSetup.PgPort,
				InitialState: types.NodeStateInit,
			})
			if err != nil {
				return err
			}
			st.CurrentNodeID = nodeID
			st.CurrentGroup = group
			st.AssignedRole = assigned
		}

		store := state.New(cfg.Path.State)
		if err := store.Write(st); err != nil {
			return err
		}

		fmt.Printf("Keeper state created at %s\n", cfg.Path.State)
		fmt.Printf("  node id:    %d\n", st.CurrentNodeID)
		fmt.Printf("  group:      %d\n", st.CurrentGroup)
		fmt.Printf("  assigned:   %s\n", st.AssignedRole)
		return nil
	},
}

var createFormationCmd = &cobra.Command{
	Use:   "formation NAME",
	Short: "Create a formation on the monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Formation %q is created on the monitor, not the keeper; "+
			"this keeper only joins one with 'pg_autoctl create postgres --formation %s'.\n", args[0], args[0])
		return nil
	},
}

func init() {
	createCmd.AddCommand(createMonitorCmd)
	createCmd.AddCommand(createPostgresCmd)
	createCmd.AddCommand(createFormationCmd)

	createMonitorCmd.Flags().String("monitor-uri", "", "Monitor connection URI (required)")

	registerCommonConfigFlags(createPostgresCmd)
}
