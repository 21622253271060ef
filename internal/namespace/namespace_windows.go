// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

//go:build windows

package namespace

import (
	"fmt"
	"log/slog"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	worldRid           = 0x0000
	mediumIntegrityRid = 0x2000

	privateNamespaceFlagDestroy = 0x1

	// full access for everyone incl. app containers, low mandatory label
	fullAccessSddl = "D:(A;;GA;;;WD)(A;;GA;;;AC)(A;;GA;;;S-1-15-2-2)S:(ML;;NW;;;LW)"
)

var (
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procCreateBoundaryDescriptorW             = kernel32.NewProc("CreateBoundaryDescriptorW")
	procDeleteBoundaryDescriptor              = kernel32.NewProc("DeleteBoundaryDescriptor")
	procAddSIDToBoundaryDescriptor            = kernel32.NewProc("AddSIDToBoundaryDescriptor")
	procAddIntegrityLabelToBoundaryDescriptor = kernel32.NewProc("AddIntegrityLabelToBoundaryDescriptor")
	procCreatePrivateNamespaceW               = kernel32.NewProc("CreatePrivateNamespaceW")
	procOpenPrivateNamespaceW                 = kernel32.NewProc("OpenPrivateNamespaceW")
	procClosePrivateNamespace                 = kernel32.NewProc("ClosePrivateNamespace")
)

// Create creates the private namespace of the session manager with the given process id.
// It fails if the namespace already exists.
func Create(sessionManagerPid uint32) (*Namespace, error) {
	name := MakeName(sessionManagerPid)

	// The name is used for the boundary too: a shared boundary would break isolation between
	// concurrently running session managers, a shared namespace name would prevent different
	// engine versions from operating within the same process.
	boundary, err := newBoundaryDescriptor(name)
	if err != nil {
		return nil, err
	}
	defer boundary.release()

	securityDescriptor, err := windows.SecurityDescriptorFromString(fullAccessSddl)
	if err != nil {
		return nil, fmt.Errorf("could not build security descriptor: %w", err)
	}

	attributes := windows.SecurityAttributes{
		SecurityDescriptor: securityDescriptor,
		InheritHandle:      0,
	}
	attributes.Length = uint32(unsafe.Sizeof(attributes))

	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("invalid namespace name '%s': %w", name, err)
	}

	handle, _, callErr := procCreatePrivateNamespaceW.Call(
		uintptr(unsafe.Pointer(&attributes)),
		uintptr(boundary.handle),
		uintptr(unsafe.Pointer(namePtr)),
	)
	if handle == 0 {
		return nil, fmt.Errorf("CreatePrivateNamespaceW '%s': %w", name, lastError(callErr))
	}

	slog.Debug("Private namespace created", "name", name)

	return &Namespace{name: name, handle: handle, destroy: true}, nil
}

// Open attaches to the existing private namespace of the session manager with the given process id.
// It never creates the namespace.
func Open(sessionManagerPid uint32) (*Namespace, error) {
	name := MakeName(sessionManagerPid)

	boundary, err := newBoundaryDescriptor(name)
	if err != nil {
		return nil, err
	}
	defer boundary.release()

	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("invalid namespace name '%s': %w", name, err)
	}

	handle, _, callErr := procOpenPrivateNamespaceW.Call(
		uintptr(boundary.handle),
		uintptr(unsafe.Pointer(namePtr)),
	)
	if handle == 0 {
		return nil, fmt.Errorf("OpenPrivateNamespaceW '%s': %w", name, lastError(callErr))
	}

	slog.Debug("Private namespace opened", "name", name)

	return &Namespace{name: name, handle: handle}, nil
}

type boundaryDescriptor struct {
	handle windows.Handle
}

// newBoundaryDescriptor builds a boundary everyone may enter, restricted to medium integrity and above.
func newBoundaryDescriptor(name string) (desc *boundaryDescriptor, err error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("invalid boundary name '%s': %w", name, err)
	}

	handle, _, callErr := procCreateBoundaryDescriptorW.Call(uintptr(unsafe.Pointer(namePtr)), 0)
	if handle == 0 {
		return nil, fmt.Errorf("CreateBoundaryDescriptorW '%s': %w", name, lastError(callErr))
	}

	desc = &boundaryDescriptor{handle: windows.Handle(handle)}
	defer func() {
		if err != nil {
			desc.release()
			desc = nil
		}
	}()

	if err := desc.addSid(procAddSIDToBoundaryDescriptor, &windows.SECURITY_WORLD_SID_AUTHORITY, worldRid); err != nil {
		return nil, fmt.Errorf("could not add world SID to boundary '%s': %w", name, err)
	}
	if err := desc.addSid(procAddIntegrityLabelToBoundaryDescriptor, &windows.SECURITY_MANDATORY_LABEL_AUTHORITY, mediumIntegrityRid); err != nil {
		return nil, fmt.Errorf("could not add integrity label to boundary '%s': %w", name, err)
	}
	return desc, nil
}

func (d *boundaryDescriptor) addSid(proc *windows.LazyProc, authority *windows.SidIdentifierAuthority, rid uint32) error {
	var sid *windows.SID
	if err := windows.AllocateAndInitializeSid(authority, 1, rid, 0, 0, 0, 0, 0, 0, 0, &sid); err != nil {
		return fmt.Errorf("AllocateAndInitializeSid: %w", err)
	}
	defer func() {
		if err := windows.FreeSid(sid); err != nil {
			slog.Warn("could not free SID", "error", err)
		}
	}()

	// the descriptor may be reallocated, hence passed by reference
	ok, _, callErr := proc.Call(uintptr(unsafe.Pointer(&d.handle)), uintptr(unsafe.Pointer(sid)))
	if ok == 0 {
		return fmt.Errorf("%s: %w", proc.Name, lastError(callErr))
	}
	return nil
}

func (d *boundaryDescriptor) release() {
	procDeleteBoundaryDescriptor.Call(uintptr(d.handle))
}

func closeNamespace(handle uintptr, destroy bool) error {
	var flags uintptr
	if destroy {
		flags = privateNamespaceFlagDestroy
	}

	ok, _, callErr := procClosePrivateNamespace.Call(handle, flags)
	if ok&0xff == 0 {
		return fmt.Errorf("ClosePrivateNamespace: %w", lastError(callErr))
	}
	return nil
}

func lastError(err error) error {
	if errno, ok := err.(syscall.Errno); ok && errno != 0 {
		return errno
	}
	return syscall.EINVAL
}
