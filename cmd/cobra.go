package cmd

import (
	"github.com/spf13/cobra"
)

// Mainify wraps an error-returning command entry point (the signature every
// subcommand in cmd/lazydog actually implements) into the plain
// func(*cobra.Command, []string) that cobra.Command.Run expects. This lets an
// entry point rely on defer-based cleanup (stopping the watcher, flushing
// state) instead of calling os.Exit itself, while still reporting a failure
// through Fatal once that cleanup has run.
func Mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			Fatal(err)
		}
	}
}
