package config

// Linker-injected build metadata variables. These are set at compile time via
// -ldflags, for example:
//
//	go build -ldflags "-X receiptnotifier/internal/config.version=1.2.3 \
//	    -X receiptnotifier/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X receiptnotifier/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Default values are used during local development when ldflags are not set.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata. It is also used by
// binaries that do not load the full Config (the ops API /info endpoint).
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
