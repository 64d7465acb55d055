package build

import (
	"os"
)

// DebugEnabled controls whether or not debugging is enabled for Lazydog. It is
// set automatically based on the LAZYDOG_DEBUG environment variable.
var DebugEnabled bool

func init() {
	// Check whether or not debugging should be enabled.
	DebugEnabled = os.Getenv("LAZYDOG_DEBUG") == "1"
}
