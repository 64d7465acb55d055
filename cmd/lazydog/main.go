package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warniiiz/lazydog-go/cmd"
	"github.com/warniiiz/lazydog-go/pkg/build"
)

func rootMain(command *cobra.Command, arguments []string) {
	if rootConfiguration.version {
		fmt.Println(build.Version)
		return
	}
	command.Help()
}

var rootCommand = &cobra.Command{
	Use:   "lazydog",
	Short: "Lazydog correlates raw filesystem notifications into high-level create/delete/move/copy events",
	Run:   rootMain,
}

var rootConfiguration struct {
	help    bool
	version bool
}

func init() {
	flags := rootCommand.Flags()
	flags.SortFlags = false

	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVarP(&rootConfiguration.version, "version", "v", false, "Show version information")

	rootCommand.AddCommand(watchCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
	os.Exit(0)
}
