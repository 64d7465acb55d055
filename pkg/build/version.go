package build

import (
	"fmt"
)

const (
	// VersionMajor represents the current major version of Lazydog.
	VersionMajor = 0
	// VersionMinor represents the current minor version of Lazydog.
	VersionMinor = 1
	// VersionPatch represents the current patch version of Lazydog.
	VersionPatch = 0
)

// Version is the formatted version string for this build.
var Version string

func init() {
	Version = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
}
