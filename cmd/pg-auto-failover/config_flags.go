package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gmr/pg-auto-failover/pkg/types"
)

// registerCommonConfigFlags attaches the flag set that maps directly
// onto KeeperConfig, used by "create postgres", which builds a
// standalone config rather than loading one from disk.
func registerCommonConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("pgdata", "", "PostgreSQL data directory (required)")
	cmd.Flags().Int("pgport", 5432, "PostgreSQL port")
	cmd.Flags().String("auth", "trust", "PostgreSQL auth method for pg_hba.conf entries")
	cmd.Flags().String("formation", "default", "Formation name")
	cmd.Flags().String("nodename", "", "This node's hostname or address (required)")
	cmd.Flags().String("monitor", "", "Monitor connection URI")
	cmd.Flags().String("replication-slot", "pgautofailover_standby", "Replication slot name")
	cmd.Flags().String("replication-password", "", "Replication user password")
	cmd.Flags().Int("network-partition-timeout", 20, "Seconds of bilateral monitor+standby unreachability before self-demotion")
	cmd.Flags().String("httpd-listen", "127.0.0.1", "StatusServer listen address")
	cmd.Flags().Int("httpd-port", 8080, "StatusServer listen port")
}

// buildConfigFromFlags reads the flags registerCommonConfigFlags
// attached into a fresh types.KeeperConfig, deriving the config/state/
// pid paths from --pgdata per spec §6.
func buildConfigFromFlags(cmd *cobra.Command) (*types.KeeperConfig, error) {
	pgdata, _ := cmd.Flags().GetString("pgdata")
	if pgdata == "" {
		return nil, types.NewError(types.ErrKindConfigInvalid, "buildConfigFromFlags", fmt.Errorf("--pgdata is required"))
	}
	nodename, _ := cmd.Flags().GetString("nodename")
	if nodename == "" {
		return nil, types.NewError(types.ErrKindConfigInvalid, "buildConfigFromFlags", fmt.Errorf("--nodename is required"))
	}

	pgport, _ := cmd.Flags().GetInt("pgport")
	auth, _ := cmd.Flags().GetString("auth")
	formation, _ := cmd.Flags().GetString("formation")
	monitorURI, _ := cmd.Flags().GetString("monitor")
	slot, _ := cmd.Flags().GetString("replication-slot")
	replPassword, _ := cmd.Flags().GetString("replication-password")
	partitionTimeout, _ := cmd.Flags().GetInt("network-partition-timeout")
	httpdListen, _ := cmd.Flags().GetString("httpd-listen")
	httpdPort, _ := cmd.Flags().GetInt("httpd-port")

	return &types.KeeperConfig{
		Formation: formation,
		Nodename:  nodename,
		PgSetup: types.PgSetup{
			PgData:     pgdata,
			PgPort:     pgport,
			AuthMethod: auth,
		},
		MonitorURI:                     monitorURI,
		ReplicationSlotName:            slot,
		ReplicationPassword:            replPassword,
		NetworkPartitionTimeoutSeconds: partitionTimeout,
		HTTPD: types.HTTPDConfig{
			ListenAddress: httpdListen,
			Port:          httpdPort,
		},
		Path: derivedPaths(pgdata),
	}, nil
}
