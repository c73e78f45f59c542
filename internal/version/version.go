// Package version carries build metadata stamped in by the linker.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Producer names the program and build that wrote an analysis artifact.
func Producer() string {
	return fmt.Sprintf("padel-report %s (%s)", Version, shortSHA(GitSHA))
}

// String is the one-line version banner printed by the CLI.
func String() string {
	return fmt.Sprintf("padel-report %s (git %s, built %s)", Version, shortSHA(GitSHA), BuildTime)
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
