// Package version carries build information injected with -ldflags, e.g.
//
//	-X github.com/MrSnakeDoc/hop/internal/version.Version=v1.2.0
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"     // ex: v0.1.0
	Commit    = "none"    // ex: abcd123
	BuildDate = "unknown" // ex: 2025-08-11T18:42:00Z
	GoVersion = runtime.Version()
)

// String is the one-line build banner logged at startup.
func String() string {
	return fmt.Sprintf("hop %s (commit=%s, built=%s, go=%s)", Version, Commit, BuildDate, GoVersion)
}

// UserAgent identifies hop's outbound requests. purpose says why the request
// is made, so site owners can tell previews from other traffic.
// Example: hop/v0.1.0 (+link preview)
func UserAgent(purpose string) string {
	if purpose == "" {
		return "hop/" + Version
	}
	return fmt.Sprintf("hop/%s (+%s)", Version, purpose)
}
