package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gmr/pg-auto-failover/pkg/config"
	"github.com/gmr/pg-auto-failover/pkg/types"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Get or set a field of this node's configuration",
}

// configFields maps the "section.key" names the CLI accepts onto a
// getter/setter pair over *types.KeeperConfig. Non-reloadable fields
// may still be set here (the operator is editing the file directly,
// not sending SIGHUP); config.Reload is what enforces the reloadable
// subset at runtime.
var configFields = map[string]struct {
	get func(*types.KeeperConfig) string
	set func(*types.KeeperConfig, string) error
}{
	"pg_autoctl.formation": {
		get: func(c *types.KeeperConfig) string { return c.Formation },
		set: func(c *types.KeeperConfig, v string) error { c.Formation = v; return nil },
	},
	"pg_autoctl.nodename": {
		get: func(c *types.KeeperConfig) string { return c.Nodename },
		set: func(c *types.KeeperConfig, v string) error { c.Nodename = v; return nil },
	},
	"pg_autoctl.monitor_uri": {
		get: func(c *types.KeeperConfig) string { return c.MonitorURI },
		set: func(c *types.KeeperConfig, v string) error { c.MonitorURI = v; return nil },
	},
	"postgresql.pgport": {
		get: func(c *types.KeeperConfig) string { return strconv.Itoa(c.PgSetup.PgPort) },
		set: func(c *types.KeeperConfig, v string) error { return setInt(&c.PgSetup.PgPort, v) },
	},
	"timeout.network_partition_timeout_seconds": {
		get: func(c *types.KeeperConfig) string { return strconv.Itoa(c.NetworkPartitionTimeoutSeconds) },
		set: func(c *types.KeeperConfig, v string) error { return setInt(&c.NetworkPartitionTimeoutSeconds, v) },
	},
	"httpd.listen_address": {
		get: func(c *types.KeeperConfig) string { return c.HTTPD.ListenAddress },
		set: func(c *types.KeeperConfig, v string) error { c.HTTPD.ListenAddress = v; return nil },
	},
	"httpd.port": {
		get: func(c *types.KeeperConfig) string { return strconv.Itoa(c.HTTPD.Port) },
		set: func(c *types.KeeperConfig, v string) error { return setInt(&c.HTTPD.Port, v) },
	},
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("expected an integer, got %q", v)
	}
	*dst = n
	return nil
}

var configGetCmd = &cobra.Command{
	Use:   "get SECTION.KEY",
	Short: "Print one configuration field",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		field, ok := configFields[args[0]]
		if !ok {
			return fmt.Errorf("unknown config field %q", args[0])
		}
		pgdata, _ := cmd.Flags().GetString("pgdata")
		cfg, err := config.Load(derivedPaths(pgdata).Config)
		if err != nil {
			return err
		}
		fmt.Println(field.get(cfg))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set SECTION.KEY VALUE",
	Short: "Set one configuration field and rewrite the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		field, ok := configFields[args[0]]
		if !ok {
			return fmt.Errorf("unknown config field %q", args[0])
		}
		pgdata, _ := cmd.Flags().GetString("pgdata")
		path := derivedPaths(pgdata).Config
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := field.set(cfg, args[1]); err != nil {
			return types.NewError(types.ErrKindConfigInvalid, "config.set", err)
		}
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		if !reloadableKeys[args[0]] {
			fmt.Println("Note: this field is not reloadable; restart the keeper for it to take effect.")
		} else {
			fmt.Println("Send SIGHUP (pg_autoctl reload) for this change to take effect.")
		}
		return nil
	},
}

// reloadableKeys mirrors pkg/config's own table so the CLI can warn
// the operator when a change needs a restart instead of a reload.
var reloadableKeys = map[string]bool{
	"timeout.network_partition_timeout_seconds": true,
	"httpd.listen_address":                      true,
	"httpd.port":                                true,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configGetCmd.Flags().String("pgdata", "", "PostgreSQL data directory (required)")
	configSetCmd.Flags().String("pgdata", "", "PostgreSQL data directory (required)")
}
