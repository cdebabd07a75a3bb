// Package commands is kerneld's cobra command tree, grounded on
// Roasbeef-substrate/cmd/substrate/commands/root.go's
// rootCmd/persistent-flags idiom: one package-level rootCmd, one
// Execute entry point, subcommands registered from init.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// debugAddr is the address debugsrv listens on when run is given
	// --debug-addr (empty disables the debug server).
	debugAddr string
)

// rootCmd is the base command for kerneld.
var rootCmd = &cobra.Command{
	Use:   "kerneld",
	Short: "actorkernel daemon",
	Long: `kerneld boots a cooperatively-scheduled, capability-sandboxed
actor kernel: load hot-swappable modules, dispatch actors, and
optionally serve a read-only debug introspection endpoint.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&debugAddr, "debug-addr", "",
		"address for the read-only debug server (empty disables it)",
	)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(inspectCmd)
}
