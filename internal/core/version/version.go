// Package version carries build identity stamped at link time
package version

var (
	// Version is the semantic version or git describe output
	Version = "dev"

	// Commit is the short git SHA
	Commit = "unknown"

	// BuiltAt is the build timestamp
	BuiltAt = "unknown"
)

// Info is the wire shape for version endpoints
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	BuiltAt string `json:"built_at"`
}

// Get returns the stamped identity
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuiltAt: BuiltAt}
}
