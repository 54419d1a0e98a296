package version

import "runtime"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent identifies parlando in outbound HTTP requests.
func UserAgent() string {
	return "parlando/" + Version
}

func String() string {
	return "parlando " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}
