// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

//go:build windows

package inject

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var remoteThreadTimeout = 30 * time.Second

var (
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procVirtualAllocEx     = kernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx      = kernel32.NewProc("VirtualFreeEx")
	procCreateRemoteThread = kernel32.NewProc("CreateRemoteThread")
	procGetExitCodeThread  = kernel32.NewProc("GetExitCodeThread")
	procLoadLibraryW       = kernel32.NewProc("LoadLibraryW")

	errArchitectureMismatch = errors.New("target process architecture differs from the injecting process")
	errRemoteThreadTimeout  = errors.New("remote thread did not finish in time")
)

// DLLInjector loads the engine DLL into created processes with a remote LoadLibraryW thread,
// then calls the engine's init export with the session manager handle.
type DLLInjector struct {
	dllPath    string
	initOffset uintptr
}

func NewDLLInjector(dllPath string) (*DLLInjector, error) {
	abs, err := filepath.Abs(dllPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("engine dll not found: %w", err)
	}

	offset, err := exportOffset(abs, EngineInitExport)
	if err != nil {
		slog.Warn("engine dll has no init export, engine initializes on load only", "dll", abs, "export", EngineInitExport, "error", err)
	}

	return &DLLInjector{dllPath: abs, initOffset: offset}, nil
}

func (d *DLLInjector) Inject(info ProcessInformation, options InjectOptions) error {
	process := windows.Handle(info.Process)

	if err := ensureSameArchitecture(process); err != nil {
		return err
	}

	base, err := d.loadRemote(process, info.ProcessID)
	if err != nil {
		return err
	}
	if d.initOffset == 0 {
		return nil
	}

	var remoteHandle windows.Handle
	if options.SessionManagerProcess != 0 {
		if err := windows.DuplicateHandle(windows.CurrentProcess(), windows.Handle(options.SessionManagerProcess),
			process, &remoteHandle, 0, false, windows.DUPLICATE_SAME_ACCESS); err != nil {
			return fmt.Errorf("could not duplicate session manager handle into pid %d: %w", info.ProcessID, err)
		}
	}
	args := NewInitArgs(uintptr(remoteHandle), options)

	remoteArgs, err := writeRemote(process, unsafe.Slice((*byte)(unsafe.Pointer(&args)), unsafe.Sizeof(args)))
	if err != nil {
		return err
	}
	code, err := runRemoteThread(process, base+d.initOffset, remoteArgs)
	releaseRemote(process, remoteArgs, err)
	if err != nil {
		return fmt.Errorf("%s: %w", EngineInitExport, err)
	}
	if code != 0 {
		return fmt.Errorf("%s returned %d", EngineInitExport, code)
	}
	return nil
}

func (d *DLLInjector) Resume(info ProcessInformation) error {
	if _, err := windows.ResumeThread(windows.Handle(info.Thread)); err != nil {
		return fmt.Errorf("ResumeThread: %w", err)
	}
	return nil
}

func (d *DLLInjector) loadRemote(process windows.Handle, pid uint32) (uintptr, error) {
	path, err := windows.UTF16FromString(d.dllPath)
	if err != nil {
		return 0, err
	}

	remotePath, err := writeRemote(process, unsafe.Slice((*byte)(unsafe.Pointer(&path[0])), len(path)*2))
	if err != nil {
		return 0, err
	}
	// the exit code holds only the lower 32 bits of the module handle on 64-bit
	code, err := runRemoteThread(process, procLoadLibraryW.Addr(), remotePath)
	releaseRemote(process, remotePath, err)
	if err != nil {
		return 0, fmt.Errorf("LoadLibraryW: %w", err)
	}
	if code == 0 {
		return 0, errors.New("LoadLibraryW returned NULL")
	}

	return remoteModuleBase(pid, d.dllPath)
}

// CreateProcess creates a process with CreateProcessW. It serves as unhooked implementation for
// processes started by modhost itself.
func CreateProcess(call *CreateProcessCall) error {
	var applicationName *uint16
	if call.ApplicationName != "" {
		var err error
		if applicationName, err = windows.UTF16PtrFromString(call.ApplicationName); err != nil {
			return err
		}
	}

	// CreateProcessW may modify the command line buffer
	commandLine, err := windows.UTF16FromString(call.CommandLine)
	if err != nil {
		return err
	}

	startupInfo := windows.StartupInfo{}
	startupInfo.Cb = uint32(unsafe.Sizeof(startupInfo))
	var info windows.ProcessInformation

	if err := windows.CreateProcess(applicationName, &commandLine[0], nil, nil, false,
		call.CreationFlags|windows.CREATE_UNICODE_ENVIRONMENT, nil, nil, &startupInfo, &info); err != nil {
		return fmt.Errorf("CreateProcessW '%s': %w", call.CommandLine, err)
	}

	call.Info = ProcessInformation{
		Process:   uintptr(info.Process),
		Thread:    uintptr(info.Thread),
		ProcessID: info.ProcessId,
		ThreadID:  info.ThreadId,
	}
	return nil
}

// OpenProcess returns a handle of the given process, suitable as session manager reference in InjectOptions.
func OpenProcess(pid uint32) (uintptr, error) {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION|windows.SYNCHRONIZE, false, pid)
	if err != nil {
		return 0, fmt.Errorf("OpenProcess(%d): %w", pid, err)
	}
	return uintptr(handle), nil
}

func CloseHandle(handle uintptr) error {
	return windows.CloseHandle(windows.Handle(handle))
}

// WaitForExit waits for the process to exit and returns its exit code.
func WaitForExit(info ProcessInformation) (uint32, error) {
	process := windows.Handle(info.Process)
	if _, err := windows.WaitForSingleObject(process, windows.INFINITE); err != nil {
		return 0, fmt.Errorf("WaitForSingleObject: %w", err)
	}

	var code uint32
	if err := windows.GetExitCodeProcess(process, &code); err != nil {
		return 0, fmt.Errorf("GetExitCodeProcess: %w", err)
	}
	return code, nil
}

// CloseHandles closes the process and thread handles of a created process.
func CloseHandles(info ProcessInformation) error {
	return errors.Join(
		windows.CloseHandle(windows.Handle(info.Thread)),
		windows.CloseHandle(windows.Handle(info.Process)),
	)
}

func ensureSameArchitecture(process windows.Handle) error {
	var targetWow64, selfWow64 bool
	if err := windows.IsWow64Process(process, &targetWow64); err != nil {
		return fmt.Errorf("IsWow64Process: %w", err)
	}
	if err := windows.IsWow64Process(windows.CurrentProcess(), &selfWow64); err != nil {
		return fmt.Errorf("IsWow64Process: %w", err)
	}
	if targetWow64 != selfWow64 {
		return errArchitectureMismatch
	}
	return nil
}

func exportOffset(dllPath, export string) (uintptr, error) {
	module, err := windows.LoadLibraryEx(dllPath, 0, windows.DONT_RESOLVE_DLL_REFERENCES)
	if err != nil {
		return 0, err
	}
	defer windows.FreeLibrary(module)

	address, err := windows.GetProcAddress(module, export)
	if err != nil {
		return 0, err
	}
	return address - uintptr(module), nil
}

func remoteModuleBase(pid uint32, dllPath string) (uintptr, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, pid)
	if err != nil {
		return 0, fmt.Errorf("CreateToolhelp32Snapshot: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	for err = windows.Module32First(snapshot, &entry); err == nil; err = windows.Module32Next(snapshot, &entry) {
		if strings.EqualFold(windows.UTF16ToString(entry.ExePath[:]), dllPath) {
			return entry.ModBaseAddr, nil
		}
	}
	return 0, fmt.Errorf("module '%s' not loaded in pid %d", dllPath, pid)
}

func writeRemote(process windows.Handle, data []byte) (uintptr, error) {
	address, _, callErr := procVirtualAllocEx.Call(uintptr(process), 0, uintptr(len(data)),
		windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if address == 0 {
		return 0, fmt.Errorf("VirtualAllocEx: %w", callErr)
	}

	var written uintptr
	if err := windows.WriteProcessMemory(process, address, &data[0], uintptr(len(data)), &written); err != nil || written != uintptr(len(data)) {
		freeRemote(process, address)
		return 0, fmt.Errorf("WriteProcessMemory: %w", errors.Join(err, fmt.Errorf("%d of %d bytes written", written, len(data))))
	}
	return address, nil
}

func freeRemote(process windows.Handle, address uintptr) {
	if ok, _, callErr := procVirtualFreeEx.Call(uintptr(process), address, 0, windows.MEM_RELEASE); ok == 0 {
		slog.Debug("VirtualFreeEx failed", "error", callErr)
	}
}

// releaseRemote frees a buffer passed to a remote thread. A thread that timed out may still
// read it, so the buffer is leaked in that case.
func releaseRemote(process windows.Handle, address uintptr, threadErr error) {
	if errors.Is(threadErr, errRemoteThreadTimeout) {
		slog.Warn("Remote thread still running, leaving its buffer allocated", "address", fmt.Sprintf("%#x", address))
		return
	}
	freeRemote(process, address)
}

func runRemoteThread(process windows.Handle, start, parameter uintptr) (uint32, error) {
	thread, _, callErr := procCreateRemoteThread.Call(uintptr(process), 0, 0, start, parameter, 0, 0)
	if thread == 0 {
		return 0, fmt.Errorf("CreateRemoteThread: %w", callErr)
	}
	defer windows.CloseHandle(windows.Handle(thread))

	event, err := windows.WaitForSingleObject(windows.Handle(thread), uint32(remoteThreadTimeout.Milliseconds()))
	if err != nil {
		return 0, fmt.Errorf("WaitForSingleObject: %w", err)
	}
	if event == uint32(windows.WAIT_TIMEOUT) {
		return 0, fmt.Errorf("%w: waited %v", errRemoteThreadTimeout, remoteThreadTimeout)
	}
	if event != windows.WAIT_OBJECT_0 {
		return 0, fmt.Errorf("unexpected wait result %#x for remote thread", event)
	}

	var code uint32
	if ok, _, callErr := procGetExitCodeThread.Call(thread, uintptr(unsafe.Pointer(&code))); ok == 0 {
		return 0, fmt.Errorf("GetExitCodeThread: %w", callErr)
	}
	return code, nil
}
