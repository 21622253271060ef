// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package inject

const (
	// EngineInitExport is called in the target after the engine DLL was loaded.
	EngineInitExport = "InjectInit"

	InitFlagThreadAttachExempt uint32 = 0x1
)

// InitArgs is written into the target process and handed to the engine's init export.
// The layout is fixed, both sides read it as raw memory.
type InitArgs struct {
	// SessionManagerProcess is a handle valid in the target process, 0 without session manager.
	SessionManagerProcess uint64
	Flags                 uint32
	_                     uint32
}

func NewInitArgs(sessionManagerProcess uintptr, options InjectOptions) InitArgs {
	args := InitArgs{SessionManagerProcess: uint64(sessionManagerProcess)}
	if options.ThreadAttachExempt {
		args.Flags |= InitFlagThreadAttachExempt
	}
	return args
}

func (a InitArgs) ThreadAttachExempt() bool {
	return a.Flags&InitFlagThreadAttachExempt != 0
}
