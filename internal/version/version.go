package version

import "runtime"

// Build metadata, set with -ldflags at release time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the version banner.
func String() string {
	return "voxchat " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}
