// Package versions exposes build-time version information.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build information, overridden at link time via -ldflags.
var (
	// Version is the release version
	Version = "dev"

	// Commit is the git commit the binary was built from
	Commit = "unknown"

	// BuildDate is the UTC build timestamp
	BuildDate = "unknown"
)

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the binary's version information. When the ldflags
// were not set (go install, tests) it falls back to module build info.
func GetVersionInfo() VersionInfo {
	version := Version
	commit := Commit

	if info, ok := debug.ReadBuildInfo(); ok {
		if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
		if commit == "unknown" {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					commit = setting.Value
					break
				}
			}
		}
	}

	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
