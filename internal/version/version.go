// Package version reports build metadata injected through -ldflags, falling
// back to what the Go toolchain embeds in the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/conneroisu/livetex/internal/version.Version=v1.2.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"git_commit" yaml:"git_commit"`
	BuildTime time.Time `json:"build_time" yaml:"build_time"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
	Dirty     bool      `json:"dirty" yaml:"dirty"`
}

// Get collects the build metadata.
func Get() Info {
	settings := vcsSettings()

	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Dirty:     settings["vcs.modified"] == "true",
	}

	if info.GitCommit == "" || info.GitCommit == "unknown" {
		if rev, ok := settings["vcs.revision"]; ok {
			info.GitCommit = rev
		}
	}
	if info.Version == "" || info.Version == "dev" {
		info.Version = moduleVersion(info.GitCommit)
	}
	if info.BuildTime.IsZero() {
		info.BuildTime = parseBuildTime(settings["vcs.time"])
	}

	return info
}

// Short returns a one-word version for logs and the health endpoint.
func Short() string {
	info := Get()
	if len(info.GitCommit) < 7 || info.GitCommit == "unknown" {
		return info.Version
	}

	commit := info.GitCommit[:7]
	if strings.HasPrefix(info.Version, "dev") {
		return "dev-" + commit
	}

	return fmt.Sprintf("%s (%s)", info.Version, commit)
}

// String renders the multi-line form printed by `livetex version`.
func (i Info) String() string {
	lines := []string{"livetex " + i.Version}
	if i.GitCommit != "unknown" {
		commit := i.GitCommit
		if i.Dirty {
			commit += " (dirty)"
		}
		lines = append(lines, "commit:   "+commit)
	}
	if !i.BuildTime.IsZero() {
		lines = append(lines, "built:    "+i.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines, "go:       "+i.GoVersion, "platform: "+i.Platform)

	return strings.Join(lines, "\n")
}

// IsRelease reports whether this is a tagged build.
func IsRelease() bool {
	return !strings.HasPrefix(Get().Version, "dev")
}

func moduleVersion(commit string) string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	if len(commit) >= 7 && commit != "unknown" {
		return "dev-" + commit[:7]
	}

	return "dev"
}

func vcsSettings() map[string]string {
	settings := make(map[string]string)

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return settings
	}
	for _, setting := range info.Settings {
		if strings.HasPrefix(setting.Key, "vcs.") {
			settings[setting.Key] = setting.Value
		}
	}

	return settings
}

// parseBuildTime accepts RFC 3339 and a few common variants; anything else
// yields the zero time.
func parseBuildTime(value string) time.Time {
	if value == "" || value == "unknown" {
		return time.Time{}
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}

	return time.Time{}
}
