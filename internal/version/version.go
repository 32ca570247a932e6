// Package version reports the ogctl build version.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/ogctl/ogctl/internal/version.Version=v0.3.0 \
//	                   -X github.com/ogctl/ogctl/internal/version.Commit=abc1234"
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date,omitempty" yaml:"date,omitempty"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

var current = resolve()

// resolve fills whatever ldflags left empty from the embedded build info.
// `go install module@vX` records the module version; a local build from a
// checkout records VCS settings instead.
func resolve() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		applyVCS(&info, bi.Settings)
	}

	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	return info
}

func applyVCS(info *Info, settings []debug.BuildSetting) {
	var revision, modified, vcsTime string
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		case "vcs.time":
			vcsTime = s.Value
		}
	}

	if info.Commit == "" && revision != "" {
		if len(revision) > 7 {
			revision = revision[:7]
		}
		info.Commit = revision
		if modified == "true" {
			info.Commit += "-dirty"
		}
	}
	if info.Date == "" {
		info.Date = vcsTime
	}
}

// Get returns the build information.
func Get() Info {
	return current
}

// Short returns the bare version, e.g. "v0.3.0" or "dev".
func Short() string {
	return current.Version
}

// Full returns the version with commit and platform.
func Full() string {
	return fmt.Sprintf("%s (commit: %s, %s, %s)", current.Version, current.Commit, current.GoVersion, current.Platform)
}

// UserAgent is sent with every controller request.
func UserAgent() string {
	return "ogctl/" + strings.TrimPrefix(current.Version, "v")
}
