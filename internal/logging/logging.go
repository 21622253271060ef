// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package logging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	mos "github.com/modhost/modhost/internal/os"
)

const logDirName = "logs"

func SetVerbosity(verbosity string, levelVar *slog.LevelVar) error {
	level, err := parseLevel(verbosity)
	if err != nil {
		return err
	}

	levelVar.Set(level)

	slog.Info("logger level set", "level", level)

	return nil
}

// LogDir returns the directory all modhost components log into, below the given data dir.
func LogDir(dataDir string) string {
	return filepath.Join(dataDir, logDirName)
}

// LogFilePath returns the log file path of the given component, e.g. 'modhost.exe'.
func LogFilePath(dataDir string, component string) string {
	return filepath.Join(LogDir(dataDir), component+".log")
}

func LevelToLowerString(level slog.Level) string {
	return strings.ToLower(level.String())
}

func ReplaceSourceFilePath(_ []string, attribute slog.Attr) slog.Attr {
	if attribute.Key == slog.SourceKey {
		source, ok := attribute.Value.Any().(*slog.Source)
		if ok {
			source.File = filepath.Base(source.File)
		}
	}
	return attribute
}

func parseLevel(input string) (slog.Level, error) {
	var level slog.Level

	if err := level.UnmarshalText([]byte(input)); err != nil {
		parsedLevel, intErr := strconv.Atoi(input)
		if intErr != nil {
			return level, fmt.Errorf("cannot convert '%s' to log level: %w", input, errors.Join(err, intErr))
		}
		level = slog.Level(parsedLevel)
	}

	return level, nil
}

// InitializeLogFile creates the log directory and file if not existing and returns the file opened for appending.
func InitializeLogFile(path string) (*os.File, error) {
	if err := mos.CreateDirIfNotExisting(filepath.Dir(path)); err != nil {
		return nil, err
	}

	logFile, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open log file '%s': %w", path, err)
	}
	return logFile, nil
}
