package cmd

import (
	"errors"
	"os"

	"github.com/warniiiz/lazydog-go/pkg/logging"
)

// Warning reports a non-fatal problem through the root logger, so a CLI-level
// warning shares the same coloring, prefixing and level gating as everything
// the engine itself logs, instead of writing to standard error on a separate
// path.
func Warning(message string) {
	logging.RootLogger.Warn(errors.New(message))
}

// Error reports a problem through the root logger.
func Error(err error) {
	logging.RootLogger.Error(err)
}

// Fatal reports err and then terminates the process with a non-zero exit
// code. It's meant to be called from the top level of a command's entry
// point once there's no further cleanup to perform.
func Fatal(err error) {
	Error(err)
	os.Exit(1)
}
