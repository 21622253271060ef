// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

// Package version reports the engine version sent to the update service and the build the
// running binary came from.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// set with -ldflags "-X github.com/modhost/modhost/internal/version.engineVersion=..."
var (
	engineVersion = "99.99.99"
	commit        = ""
)

var readBuildInfo = debug.ReadBuildInfo

type Version struct {
	Engine    string
	Commit    string
	Modified  bool
	GoVersion string
	Platform  string
}

// String renders the engine version with the short build commit, e.g. '1.5.0+abcdefg.dirty'.
func (v Version) String() string {
	if len(v.Commit) < 7 {
		return v.Engine
	}

	s := v.Engine + "+" + v.Commit[:7]
	if v.Modified {
		s += ".dirty"
	}
	return s
}

// EngineVersion returns the plain dotted engine version as reported to the update service, e.g. '1.5.0'.
func EngineVersion() string {
	return engineVersion
}

// GetVersion returns the build information. The commit falls back to the VCS stamp the go
// toolchain embeds when none was linked in.
func GetVersion() Version {
	v := Version{
		Engine:    engineVersion,
		Commit:    commit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if v.Commit != "" {
		return v
	}

	info, ok := readBuildInfo()
	if !ok {
		return v
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			v.Commit = setting.Value
		case "vcs.modified":
			v.Modified = setting.Value == "true"
		}
	}
	return v
}

// Print prints the version for the given CLI, with fmt.Printf unless another print function is given.
func (v Version) Print(cliName string, printFuncs ...func(format string, a ...any)) {
	printFunc := func(format string, a ...any) {
		fmt.Printf(format, a...)
	}
	if len(printFuncs) > 0 {
		printFunc = printFuncs[0]
	}

	printFunc("%s: %s\n", cliName, v)
	if v.Commit != "" {
		printFunc("  Commit: %s\n", v.Commit)
	}
	printFunc("  GoVersion: %s\n", v.GoVersion)
	printFunc("  Platform: %s\n", v.Platform)
}
