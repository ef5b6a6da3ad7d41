// Package version carries build metadata stamped in with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// GetVersionInfo returns the line printed by `sous version`.
func GetVersionInfo() string {
	return fmt.Sprintf("sous version %s (commit: %s, built: %s, go: %s)",
		Version, GitCommit, BuildTime, runtime.Version())
}

// UserAgent identifies this build to the cooking backend.
func UserAgent() string {
	return "sous-voice/" + Version
}
