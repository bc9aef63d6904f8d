// Package version reports build information for multifork from the values embedded by the Go toolchain, optionally
// overridden through ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// gethModulePath is the EVM library whose version is reported alongside ours.
const gethModulePath = "github.com/crytic/medusa-geth"

// These variables can be set via ldflags at build time, e.g. -X github.com/crytic/multifork/version.Version=0.2.0
var (
	// Version is the semantic version of the build.
	Version = "0.1.0"
	// GitCommit is the git commit hash.
	GitCommit = ""
	// GitCommitTime is the RFC 3339 timestamp of the git commit.
	GitCommitTime = ""
	// GitTreeDirty is "true" if the tree had uncommitted changes at build time.
	GitTreeDirty = ""
)

// Info contains the full version information for the build.
type Info struct {
	Version       string
	GitCommit     string
	GitCommitTime string
	GitTreeDirty  bool
	GoVersion     string
	GethVersion   string
}

// GetInfo returns the version information of the running binary.
func GetInfo() Info {
	info := Info{
		Version:       Version,
		GitCommit:     GitCommit,
		GitCommitTime: GitCommitTime,
		GitTreeDirty:  GitTreeDirty == "true",
		GoVersion:     runtime.Version(),
	}
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		info.fillFromBuildInfo(buildInfo)
	}
	return info
}

// fillFromBuildInfo completes fields that were not set through ldflags from the VCS settings and dependency list
// embedded by the toolchain.
func (i *Info) fillFromBuildInfo(buildInfo *debug.BuildInfo) {
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			if i.GitCommit == "" {
				i.GitCommit = setting.Value
			}
		case "vcs.time":
			if i.GitCommitTime == "" {
				i.GitCommitTime = setting.Value
			}
		case "vcs.modified":
			if !i.GitTreeDirty {
				i.GitTreeDirty = setting.Value == "true"
			}
		}
	}
	for _, dep := range buildInfo.Deps {
		if dep.Path == gethModulePath {
			i.GethVersion = dep.Version
			if dep.Replace != nil {
				i.GethVersion = dep.Replace.Version
			}
		}
	}
}

// ShortCommit returns the first 7 characters of the git commit hash.
func (i Info) ShortCommit() string {
	if len(i.GitCommit) > 7 {
		return i.GitCommit[:7]
	}
	return i.GitCommit
}

// FormattedTime returns the commit time in a human-readable format, or "unknown".
func (i Info) FormattedTime() string {
	if i.GitCommitTime == "" {
		return "unknown"
	}
	t, err := time.Parse(time.RFC3339, i.GitCommitTime)
	if err != nil {
		return i.GitCommitTime
	}
	return t.UTC().Format("2006-01-02 15:04:05 MST")
}

// String returns a formatted multi-line version string.
func (i Info) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "multifork version %s\n", i.Version)
	if commit := i.commitString(); commit != "" {
		fmt.Fprintf(&sb, "  Commit:     %s\n", commit)
		fmt.Fprintf(&sb, "  Built:      %s\n", i.FormattedTime())
	}
	if i.GethVersion != "" {
		fmt.Fprintf(&sb, "  EVM:        %s %s\n", gethModulePath, i.GethVersion)
	}
	fmt.Fprintf(&sb, "  Go version: %s\n", i.GoVersion)
	return sb.String()
}

// Short returns a single-line version string suitable for --version output.
func (i Info) Short() string {
	if commit := i.commitString(); commit != "" {
		return i.Version + "+" + commit
	}
	return i.Version
}

func (i Info) commitString() string {
	commit := i.ShortCommit()
	if commit != "" && i.GitTreeDirty {
		commit += "-dirty"
	}
	return commit
}
