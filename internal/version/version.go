// Package version holds the build identity of msync.
package version

import (
	"fmt"
	"runtime"
)

// Set with -ldflags "-X github.com/andywolf/milestonesync/internal/version.Version=v1.0.0".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

const shortCommitLen = 7

// Short returns the bare version, e.g. "v1.2.3" or "dev".
func Short() string {
	return Version
}

func shortCommit() string {
	if len(Commit) > shortCommitLen {
		return Commit[:shortCommitLen]
	}
	return Commit
}

// Info returns one line: "msync v1.2.3 (commit: abc1234, built: ..., go: go1.23.4)".
func Info() string {
	return fmt.Sprintf("msync %s (commit: %s, built: %s, go: %s)",
		Version, shortCommit(), BuildDate, runtime.Version())
}

// Full returns the multi-line form printed by "msync version -v".
func Full() string {
	return fmt.Sprintf("msync %s\n  Commit:     %s\n  Built:      %s\n  Go version: %s\n  OS/Arch:    %s/%s",
		Version, Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies msync in API requests, e.g. "msync/v1.2.3".
func UserAgent() string {
	return "msync/" + Version
}
