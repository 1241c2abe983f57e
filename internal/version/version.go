package version

import (
	"fmt"
	"runtime"
)

// Build metadata, set with -ldflags "-X spxreplay/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the build metadata for the version command.
func String() string {
	return fmt.Sprintf("spxreplay %s\ncommit: %s\nbuilt: %s\ngo: %s\n", Version, Commit, BuildDate, runtime.Version())
}
