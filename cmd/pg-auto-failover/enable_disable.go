package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gmr/pg-auto-failover/pkg/state"
	"github.com/gmr/pg-auto-failover/pkg/types"
)

// enableDisableTarget validates the one positional argument both
// "enable" and "disable" accept.
func enableDisableTarget(args []string) (string, error) {
	if len(args) != 1 || (args[0] != "secondary" && args[0] != "maintenance") {
		return "", fmt.Errorf("expected one of: secondary, maintenance")
	}
	return args[0], nil
}

var enableCmd = &cobra.Command{
	Use:   "enable {secondary|maintenance}",
	Short: "Ask this node to enable secondary mode or maintenance mode",
	Long: `Upstream pg_auto_failover routes this request through the
monitor, which assigns the corresponding state on its next node_active
reply. Since the monitor's own server is out of this keeper's scope
(§1), this writes the requested assigned_role directly into the local
KeeperState; the next reconcile tick's monitor call will overwrite it
again unless the monitor agrees, so this is an operator override good
for exactly one tick of local testing, not a substitute for monitor
policy.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := enableDisableTarget(args)
		if err != nil {
			return err
		}
		pgdata, _ := cmd.Flags().GetString("pgdata")
		role := types.NodeStateSecondary
		if target == "maintenance" {
			role = types.NodeStateMaintenance
		}
		return setAssignedRole(pgdata, role)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable {secondary|maintenance}",
	Short: "Ask this node to leave secondary mode or maintenance mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := enableDisableTarget(args); err != nil {
			return err
		}
		pgdata, _ := cmd.Flags().GetString("pgdata")
		return setAssignedRole(pgdata, types.NodeStateCatchingUp)
	},
}

func setAssignedRole(pgdata string, role types.NodeState) error {
	store := state.New(derivedPaths(pgdata).State)
	st, err := store.Read()
	if err != nil {
		return err
	}
	st.AssignedRole = role
	if err := store.Write(st); err != nil {
		return err
	}
	fmt.Printf("assigned_role set to %s; it takes effect on the keeper's next reconcile tick.\n", role)
	return nil
}

func init() {
	enableCmd.Flags().String("pgdata", "", "PostgreSQL data directory (required)")
	disableCmd.Flags().String("pgdata", "", "PostgreSQL data directory (required)")
}
