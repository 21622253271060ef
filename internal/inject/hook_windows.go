// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

//go:build windows

package inject

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	hookedFunction = "CreateProcessInternalW"

	// CreateProcessInternalW(hUserToken, lpApplicationName, lpCommandLine, lpProcessAttributes,
	// lpThreadAttributes, bInheritHandles, dwCreationFlags, lpEnvironment, lpCurrentDirectory,
	// lpStartupInfo, lpProcessInformation, hRestrictedUserToken)
	createProcessInternalArgCount = 12
	argCreationFlags              = 6
	argProcessInformation         = 10

	trampolineSize        = 128
	maxJumpHops           = 4
	allocationGranularity = 0x10000
	memFree               = 0x10000
	nearRange             = 1<<31 - 1<<24
	nopOpcode             = 0x90
)

var (
	procSetLastError          = kernel32.NewProc("SetLastError")
	procFlushInstructionCache = kernel32.NewProc("FlushInstructionCache")

	hookCallback       = sync.OnceValue(func() uintptr { return windows.NewCallback(createProcessInternalHook) })
	installedHook      atomic.Pointer[CreateProcessFunc]
	originalEntryPoint atomic.Uintptr
)

// EntryHookInstaller overwrites the first instructions of kernelbase!CreateProcessInternalW with a jump
// to a callback dispatching to the Gate. CreateProcessW/A, CreateProcessAsUserW/A and the shell APIs
// all end up in this function, whichever module calls them.
// The displaced instructions are relocated into a trampoline which serves as the original.
//
// Install and Uninstall rewrite code other threads may be executing; call them while no other thread
// of the process creates processes, e.g. during engine initialization before the main thread resumes.
type EntryHookInstaller struct {
	lock       sync.Mutex
	target     uintptr
	trampoline uintptr
	saved      []byte
	installed  bool
}

func NewEntryHookInstaller() *EntryHookInstaller {
	return &EntryHookInstaller{}
}

func (i *EntryHookInstaller) Original() (CreateProcessFunc, error) {
	i.lock.Lock()
	defer i.lock.Unlock()

	if err := i.prepare(); err != nil {
		return nil, err
	}
	trampoline := i.trampoline

	return func(call *CreateProcessCall) error {
		return callEntryPoint(trampoline, call)
	}, nil
}

func (i *EntryHookInstaller) Install(hook CreateProcessFunc) error {
	i.lock.Lock()
	defer i.lock.Unlock()

	if i.installed {
		return errors.New("hook already installed")
	}
	if err := i.prepare(); err != nil {
		return err
	}

	installedHook.Store(&hook)

	patch := encodeJump(i.target, hookCallback(), codeMode())
	for len(patch) < len(i.saved) {
		patch = append(patch, nopOpcode)
	}
	if err := writeCode(i.target, patch); err != nil {
		installedHook.Store(nil)
		return err
	}
	i.installed = true

	slog.Debug("Entry point patched", "function", hookedFunction, "address", i.target, "relocated-bytes", len(i.saved))
	return nil
}

// Uninstall restores the entry point. The trampoline stays allocated, threads may still be executing it.
func (i *EntryHookInstaller) Uninstall() error {
	i.lock.Lock()
	defer i.lock.Unlock()

	if !i.installed {
		return nil
	}
	if err := writeCode(i.target, i.saved); err != nil {
		return err
	}
	i.installed = false
	installedHook.Store(nil)
	return nil
}

func (i *EntryHookInstaller) prepare() error {
	if i.trampoline != 0 {
		return nil
	}

	mode := codeMode()
	if mode == 0 {
		return fmt.Errorf("hooking %s on %s: %w", hookedFunction, runtime.GOARCH, errors.ErrUnsupported)
	}

	entry, err := locateEntryPoint()
	if err != nil {
		return err
	}
	target := followJumps(entry, mode)

	trampoline, err := allocateNear(target, trampolineSize, mode)
	if err != nil {
		return err
	}

	code := unsafe.Slice((*byte)(unsafe.Pointer(target)), maxPrologueLen)
	relocated, err := relocatePrologue(code, target, trampoline, jumpLen(mode), mode)
	if err != nil {
		freeCode(trampoline)
		return fmt.Errorf("%s at 0x%x: %w", hookedFunction, target, err)
	}

	back := trampoline + uintptr(len(relocated))
	content := append(relocated, encodeJump(back, target+uintptr(len(relocated)), mode)...)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(trampoline)), trampolineSize), content)
	flushInstructionCache(trampoline, uintptr(len(content)))

	i.target = target
	i.trampoline = trampoline
	i.saved = slices.Clone(code[:len(relocated)])
	originalEntryPoint.Store(trampoline)
	return nil
}

// createProcessInternalHook is the callback the patched entry point jumps to.
func createProcessInternalHook(userToken, applicationName, commandLine, processAttributes, threadAttributes,
	inheritHandles, creationFlags, environment, currentDirectory, startupInfo, processInformation, restrictedUserToken uintptr) uintptr {
	call := &CreateProcessCall{
		ApplicationName: utf16PtrToString(applicationName),
		CommandLine:     utf16PtrToString(commandLine),
		CreationFlags:   uint32(creationFlags),
		Raw: []uintptr{userToken, applicationName, commandLine, processAttributes, threadAttributes,
			inheritHandles, creationFlags, environment, currentDirectory, startupInfo, processInformation, restrictedUserToken},
	}

	var err error
	if hook := installedHook.Load(); hook != nil {
		err = (*hook)(call)
	} else {
		// a thread that entered the patched code before Uninstall restored it
		err = callEntryPoint(originalEntryPoint.Load(), call)
	}

	if err != nil {
		var errno syscall.Errno
		if errors.As(err, &errno) {
			procSetLastError.Call(uintptr(errno))
		}
		return 0
	}
	return 1
}

func callEntryPoint(address uintptr, call *CreateProcessCall) error {
	if address == 0 {
		return fmt.Errorf("%s not located", hookedFunction)
	}
	if len(call.Raw) != createProcessInternalArgCount {
		return fmt.Errorf("%s expects %d arguments, got %d", hookedFunction, createProcessInternalArgCount, len(call.Raw))
	}

	args := slices.Clone(call.Raw)
	args[argCreationFlags] = uintptr(call.CreationFlags)

	ok, _, errno := syscall.SyscallN(address, args...)
	if ok == 0 {
		if errno != 0 {
			return errno
		}
		return syscall.EINVAL
	}

	if info := (*windows.ProcessInformation)(unsafe.Pointer(args[argProcessInformation])); info != nil {
		call.Info = ProcessInformation{
			Process:   uintptr(info.Process),
			Thread:    uintptr(info.Thread),
			ProcessID: info.ProcessId,
			ThreadID:  info.ThreadId,
		}
	}
	return nil
}

func locateEntryPoint() (uintptr, error) {
	for _, dll := range []string{"kernelbase.dll", "kernel32.dll"} {
		proc := windows.NewLazySystemDLL(dll).NewProc(hookedFunction)
		if proc.Find() == nil {
			return proc.Addr(), nil
		}
	}
	return 0, fmt.Errorf("%s is exported neither by kernelbase.dll nor kernel32.dll", hookedFunction)
}

func codeMode() int {
	switch runtime.GOARCH {
	case "amd64":
		return 64
	case "386":
		return 32
	}
	return 0
}

// followJumps skips jumps at the entry point, e.g. import stubs or hooks of other products.
func followJumps(address uintptr, mode int) uintptr {
	for range maxJumpHops {
		code := unsafe.Slice((*byte)(unsafe.Pointer(address)), maxPrologueLen)
		destination, indirect, ok := jumpDestination(code, address, mode)
		if !ok {
			break
		}
		if indirect {
			destination = readPtr(destination)
		}
		address = destination
	}
	return address
}

// allocateNear returns executable memory within reach of 32-bit displacements from target in 64-bit mode.
func allocateNear(target, size uintptr, mode int) (uintptr, error) {
	const allocation = windows.MEM_COMMIT | windows.MEM_RESERVE

	if mode != 64 {
		address, err := windows.VirtualAlloc(0, size, allocation, windows.PAGE_EXECUTE_READWRITE)
		if err != nil {
			return 0, fmt.Errorf("VirtualAlloc: %w", err)
		}
		return address, nil
	}

	low, high := uintptr(allocationGranularity), target+nearRange
	if target > nearRange+allocationGranularity {
		low = target - nearRange
	}

	for address := low; address < high; {
		var info windows.MemoryBasicInformation
		if err := windows.VirtualQuery(address, &info, unsafe.Sizeof(info)); err != nil {
			break
		}
		regionEnd := info.BaseAddress + info.RegionSize
		if info.State == memFree {
			candidate := (info.BaseAddress + allocationGranularity - 1) &^ (allocationGranularity - 1)
			if candidate+size <= regionEnd && candidate+size <= high {
				if allocated, err := windows.VirtualAlloc(candidate, size, allocation, windows.PAGE_EXECUTE_READWRITE); err == nil {
					return allocated, nil
				}
			}
		}
		if regionEnd <= address {
			break
		}
		address = regionEnd
	}
	return 0, fmt.Errorf("no free memory within reach of 0x%x", target)
}

func freeCode(address uintptr) {
	if err := windows.VirtualFree(address, 0, windows.MEM_RELEASE); err != nil {
		slog.Warn("could not free trampoline", "address", address, "error", err)
	}
}

func writeCode(address uintptr, code []byte) error {
	size := uintptr(len(code))

	var oldProtect uint32
	if err := windows.VirtualProtect(address, size, windows.PAGE_EXECUTE_READWRITE, &oldProtect); err != nil {
		return fmt.Errorf("VirtualProtect 0x%x: %w", address, err)
	}

	copy(unsafe.Slice((*byte)(unsafe.Pointer(address)), size), code)

	var ignored uint32
	if err := windows.VirtualProtect(address, size, oldProtect, &ignored); err != nil {
		slog.Warn("could not restore page protection", "address", address, "error", err)
	}
	flushInstructionCache(address, size)
	return nil
}

func flushInstructionCache(address, size uintptr) {
	procFlushInstructionCache.Call(uintptr(windows.CurrentProcess()), address, size)
}

func readPtr(address uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(address))
}

func utf16PtrToString(address uintptr) string {
	if address == 0 {
		return ""
	}
	return windows.UTF16PtrToString((*uint16)(unsafe.Pointer(address)))
}
