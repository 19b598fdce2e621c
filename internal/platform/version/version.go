package version

import (
	"runtime"
	"runtime/debug"
)

// Name identifies the service in outbound requests and metrics.
const Name = "killfeed"

// Overridden at build time:
//
//	go build -ldflags "-X github.com/twistedx/killfeed/internal/platform/version.Version=v1.2.0"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information. Without ldflags the commit and build
// time fall back to the VCS stamp the toolchain embeds.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.Commit == "unknown":
				info.Commit = s.Value
			case s.Key == "vcs.time" && info.BuildTime == "unknown":
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

func (i Info) String() string {
	return i.Version + " (" + i.Commit + ", built " + i.BuildTime + ", " + i.GoVersion + ")"
}

// UserAgent is sent on Discord API calls, in the "Name (url, version)" form
// Discord asks bots to use.
func UserAgent() string {
	return "DiscordBot (https://github.com/twistedx/killfeed, " + Version + ") " + Name
}
