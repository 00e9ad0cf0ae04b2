package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gmr/pg-auto-failover/pkg/config"
	"github.com/gmr/pg-auto-failover/pkg/history"
	"github.com/gmr/pg-auto-failover/pkg/state"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the monitor URI, the local transition history, or the current keeper state",
}

var showURICmd = &cobra.Command{
	Use:   "uri",
	Short: "Print the monitor connection URI from this node's config",
	RunE: func(cmd *cobra.Command, args []string) error {
		pgdata, _ := cmd.Flags().GetString("pgdata")
		cfg, err := config.Load(derivedPaths(pgdata).Config)
		if err != nil {
			return err
		}
		fmt.Println(cfg.MonitorURI)
		return nil
	},
}

var showEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show this keeper's local FSM transition history",
	Long: `Upstream pg_auto_failover serves "show events" from the
monitor's database. The monitor is out of this keeper's scope (§1), so
this instead reads pkg/history's keeper-local ledger of transitions
this node has attempted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pgdata, _ := cmd.Flags().GetString("pgdata")
		limit, _ := cmd.Flags().GetInt("limit")

		ledger, err := history.Open(derivedPaths(pgdata).State + ".history")
		if err != nil {
			return err
		}
		defer ledger.Close()

		records, err := ledger.Recent(limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No transitions recorded yet.")
			return nil
		}
		fmt.Printf("%-20s %-18s %-18s %-5s %s\n", "AT", "FROM", "TO", "OK", "DETAIL")
		for _, r := range records {
			fmt.Printf("%-20d %-18s %-18s %-5t %s\n", r.At, r.From, r.To, r.OK, r.Detail)
		}
		return nil
	},
}

var showStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show this node's persisted KeeperState",
	RunE: func(cmd *cobra.Command, args []string) error {
		pgdata, _ := cmd.Flags().GetString("pgdata")
		st, err := state.New(derivedPaths(pgdata).State).Read()
		if err != nil {
			return err
		}
		fmt.Printf("current_role:           %s\n", st.CurrentRole)
		fmt.Printf("assigned_role:          %s\n", st.AssignedRole)
		fmt.Printf("node id / group:        %d / %d\n", st.CurrentNodeID, st.CurrentGroup)
		fmt.Printf("pg_is_running:          %t\n", st.PgIsRunning)
		fmt.Printf("sync_state:             %s\n", st.SyncState)
		fmt.Printf("last_monitor_contact:   %d\n", st.LastMonitorContact)
		fmt.Printf("last_secondary_contact: %d\n", st.LastSecondaryContact)
		return nil
	},
}

func init() {
	showCmd.AddCommand(showURICmd)
	showCmd.AddCommand(showEventsCmd)
	showCmd.AddCommand(showStateCmd)

	for _, c := range []*cobra.Command{showURICmd, showEventsCmd, showStateCmd} {
		c.Flags().String("pgdata", "", "PostgreSQL data directory (required)")
	}
	showEventsCmd.Flags().Int("limit", 20, "Maximum number of recent transitions to show")
}
