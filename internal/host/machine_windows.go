// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

//go:build windows

package host

import (
	"log/slog"
	"runtime"

	"golang.org/x/sys/windows"
)

var procIsWow64Process2 = windows.NewLazySystemDLL("kernel32.dll").NewProc("IsWow64Process2")

func detectNativeMachine() uint16 {
	if procIsWow64Process2.Find() == nil {
		var processMachine, native uint16
		if err := windows.IsWow64Process2(windows.CurrentProcess(), &processMachine, &native); err != nil {
			slog.Warn("IsWow64Process2 failed", "error", err)
			return MachineUnknown
		}
		return native
	}

	// pre-Windows 10 hosts; ARM64 always has IsWow64Process2
	if runtime.GOARCH == "386" {
		var isWow64 bool
		if err := windows.IsWow64Process(windows.CurrentProcess(), &isWow64); err != nil {
			slog.Warn("IsWow64Process failed", "error", err)
			return MachineUnknown
		}
		if isWow64 {
			return MachineAMD64
		}
		return MachineI386
	}
	return machineFromArch(runtime.GOARCH)
}
