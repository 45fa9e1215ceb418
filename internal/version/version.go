// Package version holds build identity injected at link time:
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.0 \
//	    -X .../internal/version.GitSHA=$(git rev-parse --short HEAD) \
//	    -X .../internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Plain `go build` leaves the dev defaults, which the stats endpoint and the
// -version flag report as-is.
package version

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA identifies the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)
