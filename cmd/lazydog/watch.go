package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/warniiiz/lazydog-go/cmd"
	"github.com/warniiiz/lazydog-go/pkg/config"
	"github.com/warniiiz/lazydog-go/pkg/event"
	"github.com/warniiiz/lazydog-go/pkg/lazydog"
	"github.com/warniiiz/lazydog-go/pkg/logging"
	"github.com/warniiiz/lazydog-go/pkg/releasegate"
)

func watchMain(command *cobra.Command, arguments []string) error {
	root := "."
	if len(arguments) == 1 {
		root = arguments[0]
	} else if len(arguments) > 1 {
		return fmt.Errorf("only one root directory may be watched at a time")
	}

	cfg := config.Default
	if watchConfiguration.configPath != "" {
		loaded, err := config.Load(watchConfiguration.configPath)
		if err != nil {
			return fmt.Errorf("unable to load configuration: %w", err)
		}
		cfg = loaded
	}
	if watchConfiguration.quietPeriod > 0 {
		cfg.QuietPeriodSeconds = watchConfiguration.quietPeriod
	}

	if watchConfiguration.debug {
		logging.RootLogger.SetLevel(logging.LevelDebug)
	}

	core, err := lazydog.New(root, cfg, nil, logging.RootLogger)
	if err != nil {
		return fmt.Errorf("unable to initialize engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := core.Start(ctx); err != nil {
		return fmt.Errorf("unable to start watching %s: %w", root, err)
	}
	defer core.Stop()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, cmd.TerminationSignals...)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-signals:
			return nil
		case <-ticker.C:
			for _, e := range core.Poll() {
				printEvent(e)
			}
		}
	}
}

func printEvent(e releasegate.Event) {
	line := color.New()
	switch e.Kind {
	case event.Created, event.Copied:
		line = color.New(color.FgGreen)
	case event.Deleted:
		line = color.New(color.FgRed)
	case event.Moved:
		line = color.New(color.FgCyan)
	case event.ModifiedContent, event.ModifiedMetadata:
		line = color.New(color.FgYellow)
	}

	path := e.Path.String()
	if e.Kind == event.Moved || e.Kind == event.Copied {
		path = fmt.Sprintf("%s -> %s", e.Path.String(), e.ToPath.String())
	}

	size := ""
	if !e.IsDir && e.Size > 0 {
		size = " (" + humanize.Bytes(uint64(e.Size)) + ")"
	}

	line.Printf("%-18s %s%s\n", e.Kind, path, size)
}

var watchCommand = &cobra.Command{
	Use:   "watch [<root>]",
	Short: "Watches a directory tree and prints the high-level events Lazydog correlates from it",
	Args:  cobra.MaximumNArgs(1),
	Run:   cmd.Mainify(watchMain),
}

var watchConfiguration struct {
	help        bool
	configPath  string
	quietPeriod float64
	debug       bool
}

func init() {
	flags := watchCommand.Flags()
	flags.SortFlags = false

	flags.BoolVarP(&watchConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVarP(&watchConfiguration.configPath, "config", "c", "", "Path to a YAML configuration file")
	flags.Float64Var(&watchConfiguration.quietPeriod, "quiet-period", 0, "Override the release gate's quiet period, in seconds")
	flags.BoolVar(&watchConfiguration.debug, "debug", false, "Enable debug logging")
}
