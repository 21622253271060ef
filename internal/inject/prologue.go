// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package inject

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/arch/x86/x86asm"
)

// maxPrologueLen bounds the code read at an entry point; the longest x86 instruction is 15 bytes.
const maxPrologueLen = 48

var errNotRelocatable = errors.New("entry point code cannot be relocated")

// jumpLen returns the size of the jump written over an entry point.
func jumpLen(mode int) int {
	if mode == 64 {
		return 14
	}
	return 5
}

// encodeJump returns an unconditional jump placed at from to to: 'jmp qword ptr [rip+0]' followed by the
// absolute target in 64-bit mode, 'jmp rel32' in 32-bit mode.
func encodeJump(from, to uintptr, mode int) []byte {
	if mode == 64 {
		code := []byte{0xff, 0x25, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
		binary.LittleEndian.PutUint64(code[6:], uint64(to))
		return code
	}
	code := []byte{0xe9, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(code[1:], uint32(to)-uint32(from)-5)
	return code
}

// relocatePrologue copies the whole instructions at the start of code, executed at oldAddress, covering
// at least minLen bytes, so that the copy behaves the same when executed at newAddress.
// 32-bit PC-relative operands are adjusted; 8-bit relative branches and control flow leaving the copied
// range before minLen cannot be relocated.
func relocatePrologue(code []byte, oldAddress, newAddress uintptr, minLen int, mode int) ([]byte, error) {
	var relocated []byte

	for len(relocated) < minLen {
		offset := len(relocated)
		if offset >= len(code) {
			return nil, fmt.Errorf("%w: code ends after %d bytes", errNotRelocatable, offset)
		}

		inst, err := x86asm.Decode(code[offset:], mode)
		if err != nil {
			return nil, fmt.Errorf("%w: offset %d: %w", errNotRelocatable, offset, err)
		}
		end := offset + inst.Len

		if end < minLen && endsFlow(inst.Op) {
			return nil, fmt.Errorf("%w: %s at offset %d", errNotRelocatable, inst.Op, offset)
		}

		instCode := append([]byte(nil), code[offset:end]...)
		if err := relocatePCRel(inst, instCode, oldAddress+uintptr(offset), newAddress+uintptr(offset), mode); err != nil {
			return nil, fmt.Errorf("%w: %s at offset %d: %w", errNotRelocatable, inst.Op, offset, err)
		}
		relocated = append(relocated, instCode...)
	}
	return relocated, nil
}

func relocatePCRel(inst x86asm.Inst, instCode []byte, oldAddress, newAddress uintptr, mode int) error {
	if inst.PCRel == 0 {
		for _, arg := range inst.Args {
			if mem, ok := arg.(x86asm.Mem); ok && mem.Base == x86asm.RIP {
				return errors.New("RIP-relative operand without displacement info")
			}
		}
		return nil
	}
	if inst.PCRel != 4 {
		return fmt.Errorf("%d-byte relative operand", inst.PCRel)
	}

	field := instCode[inst.PCRelOff : inst.PCRelOff+4]
	displacement := int64(int32(binary.LittleEndian.Uint32(field)))
	target := int64(oldAddress) + int64(inst.Len) + displacement
	adjusted := target - (int64(newAddress) + int64(inst.Len))

	if mode == 64 && (adjusted < math.MinInt32 || adjusted > math.MaxInt32) {
		return fmt.Errorf("target 0x%x out of reach from 0x%x", target, newAddress)
	}
	binary.LittleEndian.PutUint32(field, uint32(int32(adjusted)))
	return nil
}

func endsFlow(op x86asm.Op) bool {
	switch op {
	case x86asm.RET, x86asm.LRET, x86asm.JMP, x86asm.LJMP, x86asm.INT, x86asm.UD2, x86asm.HLT:
		return true
	}
	return false
}

// jumpDestination reports where a jump at the start of code leads. For 'jmp rel' the destination is
// the target itself; for 'jmp [rip+disp]' it is the address of the pointer slot and indirect is true.
func jumpDestination(code []byte, address uintptr, mode int) (destination uintptr, indirect bool, ok bool) {
	inst, err := x86asm.Decode(code, mode)
	if err != nil || inst.Op != x86asm.JMP {
		return 0, false, false
	}

	next := int64(address) + int64(inst.Len)
	switch arg := inst.Args[0].(type) {
	case x86asm.Rel:
		return uintptr(next + int64(arg)), false, true
	case x86asm.Mem:
		if arg.Base == x86asm.RIP && arg.Index == 0 {
			return uintptr(next + arg.Disp), true, true
		}
		if mode == 32 && arg.Base == 0 && arg.Index == 0 {
			return uintptr(uint32(arg.Disp)), true, true
		}
	}
	return 0, false, false
}
