// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package host

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/host"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PE machine type codes as reported in the update user agent.
const (
	MachineUnknown uint16 = 0x0
	MachineI386    uint16 = 0x14c
	MachineAMD64   uint16 = 0x8664
	MachineARM64   uint16 = 0xaa64
)

const appDirName = "modhost"

var nativeMachine = sync.OnceValue(detectNativeMachine)

// NativeMachine returns the PE machine code of the OS, which differs from the
// process architecture when running under emulation.
func NativeMachine() uint16 {
	return nativeMachine()
}

// DefaultDataDir returns the machine-wide data dir shared by all engine copies of the
// session manager, e.g. 'C:\ProgramData\modhost'.
func DefaultDataDir() string {
	if programData := os.Getenv("ProgramData"); programData != "" {
		return filepath.Join(programData, appDirName)
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, appDirName)
	}
	return filepath.Join(os.TempDir(), appDirName)
}

// ResolveTildePrefix replaces the leading tilde ('~') in the given path with the current user's home directory.
func ResolveTildePrefix(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine user home dir: %w", err)
	}
	return filepath.Clean(strings.Replace(path, "~", homeDir, 1)), nil
}

// Platform generates a user-readable platform message
func Platform() string {
	var s strings.Builder
	hi, err := host.Info()
	if err == nil {
		s.WriteString(fmt.Sprintf("%s %s", cases.Title(language.Und).String(hi.Platform), hi.PlatformVersion))
		slog.Debug("Host info", "info", hi)
	} else {
		slog.Warn("host.Info returned error", "error", err)
		s.WriteString(runtime.GOOS)
	}

	return s.String()
}

func machineFromArch(arch string) uint16 {
	switch arch {
	case "386":
		return MachineI386
	case "amd64":
		return MachineAMD64
	case "arm64":
		return MachineARM64
	default:
		return MachineUnknown
	}
}
