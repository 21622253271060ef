// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

//go:build !windows

package inject

import (
	"errors"
	"fmt"
)

type DLLInjector struct{}

type EntryHookInstaller struct{}

func NewDLLInjector(dllPath string) (*DLLInjector, error) {
	return nil, fmt.Errorf("could not load engine dll '%s': %w", dllPath, errors.ErrUnsupported)
}

func (*DLLInjector) Inject(ProcessInformation, InjectOptions) error { return errors.ErrUnsupported }

func (*DLLInjector) Resume(ProcessInformation) error { return errors.ErrUnsupported }

func NewEntryHookInstaller() *EntryHookInstaller {
	return &EntryHookInstaller{}
}

func (*EntryHookInstaller) Original() (CreateProcessFunc, error) { return nil, errors.ErrUnsupported }

func (*EntryHookInstaller) Install(CreateProcessFunc) error { return errors.ErrUnsupported }

func (*EntryHookInstaller) Uninstall() error { return nil }

func CreateProcess(call *CreateProcessCall) error {
	return fmt.Errorf("could not create process '%s': %w", call.CommandLine, errors.ErrUnsupported)
}

func OpenProcess(uint32) (uintptr, error) { return 0, errors.ErrUnsupported }

func CloseHandle(uintptr) error { return nil }

func WaitForExit(ProcessInformation) (uint32, error) { return 0, errors.ErrUnsupported }

func CloseHandles(ProcessInformation) error { return nil }
