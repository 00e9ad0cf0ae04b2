// Command pg-auto-failover is the keeper CLI: it wires the core
// packages (config, state, pidfile, pgctl, monitor, fsm, reconcile,
// supervisor, statusserver) into the verb tree the component design's
// §6 external interfaces describe. Grounded on cmd/warren/main.go's
// shape: one cobra root command, one package-level *cobra.Command var
// per verb, flags registered in init(), RunE doing the work and
// returning a wrapped error for main to report.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gmr/pg-auto-failover/pkg/log"
	"github.com/gmr/pg-auto-failover/pkg/types"
)

// Version information, set via ldflags during build.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a returned error to one of the stable CLI exit
// codes from spec §6; errors that never touched the keeper core (flag
// parsing, cobra usage errors) fall back to BAD_ARGS.
func exitCodeFor(err error) int {
	var ke *types.KeeperError
	if errors.As(err, &ke) {
		return types.ExitCode(ke.Kind)
	}
	return types.ExitBadArgs
}

var rootCmd = &cobra.Command{
	Use:   "pg_autoctl",
	Short: "pg_autoctl - per-node keeper for a PostgreSQL auto-failover cluster",
	Long: `pg_autoctl runs the keeper: a control agent that drives one node's
local PostgreSQL instance through the states assigned by the monitor
(init, single, wait_primary, primary, secondary, demoted, and the rest
of the node state machine), including voluntary demotion when a former
primary cannot reach the monitor or any standby.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("pg_autoctl version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity (stackable: -v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Only log errors")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(doCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
}

// initLogging applies the stackable -v/-q global flags: -q forces
// ERROR, each -v steps INFO -> DEBUG -> TRACE.
func initLogging() {
	verbose, _ := rootCmd.PersistentFlags().GetCount("verbose")
	quiet, _ := rootCmd.PersistentFlags().GetBool("quiet")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	level := log.InfoLevel
	switch {
	case quiet:
		level = log.ErrorLevel
	case verbose >= 3:
		level = log.TraceLevel
	case verbose == 2:
		level = log.DebugLevel
	case verbose == 1:
		level = log.InfoLevel
	}

	log.Init(log.Config{Level: level, JSONOutput: logJSON})
}
