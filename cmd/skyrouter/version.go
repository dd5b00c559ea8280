package main

import (
	"fmt"
	"runtime/debug"
	"strconv"
)

// Set at build time via `-ldflags "-X 'main.skyrouterVersion=X'"`.
var skyrouterVersion string

func getBuildSettingOrDefault(bi *debug.BuildInfo, key string, defaultValue string) string {
	for _, bs := range bi.Settings {
		if bs.Key == key {
			return bs.Value
		}
	}
	return defaultValue
}

// printVersion reports the build version/commit, adapted from the
// teacher's version.go (there declared but never wired to a flag).
func printVersion(verbose bool) {
	buildInfo, _ := debug.ReadBuildInfo()

	buildTimeStr := getBuildSettingOrDefault(buildInfo, "vcs.time", "UNKNOWN")
	buildCommit := getBuildSettingOrDefault(buildInfo, "vcs.revision", "UNKNOWN")
	buildDirtyStr := getBuildSettingOrDefault(buildInfo, "vcs.modified", "INVALID")
	if dirty, err := strconv.ParseBool(buildDirtyStr); err == nil && dirty {
		buildCommit += "-DIRTY"
	}

	version := skyrouterVersion
	if version == "" {
		version = "!UNKNOWN!"
	}

	fmt.Printf("skyrouter - Version %s (revision %s, built at %s)\n", version, buildCommit, buildTimeStr)
	if verbose {
		fmt.Printf("\nBuildInfo: %+v\n", buildInfo)
	}
}
