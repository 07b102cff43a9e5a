// Package buildinfo carries the version stamped into the canvas binary.
//
// The variables are overridden with ldflags at release time:
//
//	go build -ldflags "-X github.com/matzehuels/spatialcanvas/pkg/buildinfo.Version=v0.3.0 \
//	    -X github.com/matzehuels/spatialcanvas/pkg/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	    -X github.com/matzehuels/spatialcanvas/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/canvas
package buildinfo

import "fmt"

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"

	// Commit is the short git SHA the binary was built from.
	Commit = "none"

	// Date is the UTC build time.
	Date = "unknown"
)

// String returns the build information on three lines.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s", Version, Commit, Date)
}

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date)
}
