// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

//go:build windows

package engine

import (
	"fmt"
	"reflect"
	"unsafe"

	"golang.org/x/sys/windows"
)

func processIDOf(process uintptr) (uint32, error) {
	pid, err := windows.GetProcessId(windows.Handle(process))
	if err != nil {
		return 0, fmt.Errorf("GetProcessId: %w", err)
	}
	return pid, nil
}

// ModulePath returns the path of the module containing this code, i.e. the engine DLL when built as such.
func ModulePath() (string, error) {
	var module windows.Handle
	address := reflect.ValueOf(ModulePath).Pointer()
	flags := uint32(windows.GET_MODULE_HANDLE_EX_FLAG_FROM_ADDRESS | windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT)

	if err := windows.GetModuleHandleEx(flags, (*uint16)(unsafe.Pointer(address)), &module); err != nil {
		return "", fmt.Errorf("GetModuleHandleEx: %w", err)
	}

	buffer := make([]uint16, windows.MAX_LONG_PATH)
	n, err := windows.GetModuleFileName(module, &buffer[0], uint32(len(buffer)))
	if err != nil {
		return "", fmt.Errorf("GetModuleFileName: %w", err)
	}
	return windows.UTF16ToString(buffer[:n]), nil
}
