package cmd

import (
	"fmt"
	"runtime"
)

// Version information, set at build time via ldflags, mirroring the
// teacher repo's own version/gitCommit/buildTime triple. The version is
// printed by the -V flag of each kernel subcommand (spec.md §6); there is
// no separate "version" subcommand.
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// VersionString renders the -V output: version, commit, build time, and
// the Go toolchain/platform that built the binary.
func VersionString() string {
	return fmt.Sprintf("%s (commit %s, built %s) %s %s/%s",
		version, gitCommit, buildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
