// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package cli

import (
	"fmt"
	"log/slog"

	"github.com/modhost/modhost/internal/logging"
)

type ExitCode int

const (
	ExitCodeSuccess ExitCode = 0
	ExitCodeFailure ExitCode = 1

	VerbosityFlagName      = "verbosity"
	VerbosityFlagShorthand = "v"

	ConfigFlagName      = "config"
	ConfigFlagShorthand = "c"
	ConfigFlagUsage     = "Path to the modhost config file; defaults apply when not existing"

	VersionFlagName = "version"
)

func VerbosityFlagHelp() string {
	debug := logging.LevelToLowerString(slog.LevelDebug)
	info := logging.LevelToLowerString(slog.LevelInfo)
	warn := logging.LevelToLowerString(slog.LevelWarn)
	err := logging.LevelToLowerString(slog.LevelError)

	return "log level/verbosity, either pre-defined levels, integer values or a combination of both.\n" +
		fmt.Sprintf("Pre-defined levels: %s = %d | %s = %d | %s = %d | %s = %d\n", debug, slog.LevelDebug, info, slog.LevelInfo, warn, slog.LevelWarn, err, slog.LevelError) +
		fmt.Sprintf("- e.g. '-v %s'\t-> %s\n", debug, debug) +
		fmt.Sprintf("- e.g. '-v %d'\t-> %s\n", slog.LevelWarn, warn) +
		fmt.Sprintf("- e.g. '-v %s+4'\t-> %s\n", debug, info)
}

func NewVersionFlagHint(cliName string) string {
	return fmt.Sprintf("Shows the current version of %s", cliName)
}
