// Package version provides build and version information for the timeline
// service and CLI.
package version

// Version is the current release version.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/SentientTimeline/internal/version.Version=x.y.z"
var Version = "0.3.0"
