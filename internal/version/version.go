// Package version holds the release string reported by the CLI and daemon.
package version

// Version is overridden at build time with
// -ldflags "-X straitjacket/internal/version.Version=...".
var Version = "0.4.0"
