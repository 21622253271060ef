// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package inject

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("entry point relocation", func() {
	// mov r11,rsp; mov [r11+18h],rbx; mov [r11+20h],rsi; push rbp; push rdi; push r12; sub rsp,40h
	typicalPrologue := []byte{
		0x4c, 0x8b, 0xdc,
		0x49, 0x89, 0x5b, 0x18,
		0x49, 0x89, 0x73, 0x20,
		0x55,
		0x57,
		0x41, 0x54,
		0x48, 0x83, 0xec, 0x40,
	}

	Describe("relocatePrologue", func() {
		It("copies whole instructions covering the jump", func() {
			relocated, err := relocatePrologue(typicalPrologue, 0x7ff800001000, 0x7ff7f0000000, jumpLen(64), 64)

			Expect(err).ToNot(HaveOccurred())
			Expect(relocated).To(Equal(typicalPrologue[:15]))
		})

		It("adjusts RIP-relative operands", func() {
			code := []byte{
				0x48, 0x8b, 0x05, 0x10, 0x00, 0x00, 0x00, // mov rax,[rip+10h]
				0x48, 0x89, 0xc3, // mov rbx,rax
				0x48, 0x89, 0xc1, // mov rcx,rax
				0x90,
			}

			relocated, err := relocatePrologue(code, 0x7ff800001000, 0x7ff800002000, jumpLen(64), 64)

			Expect(err).ToNot(HaveOccurred())
			Expect(relocated[:3]).To(Equal(code[:3]))
			Expect(relocated[3:7]).To(Equal([]byte{0x10, 0xf0, 0xff, 0xff}))
			Expect(relocated[7:]).To(Equal(code[7:]))
		})

		It("adjusts relative calls", func() {
			code := []byte{
				0xe8, 0x00, 0x01, 0x00, 0x00, // call +100h
				0x48, 0x89, 0xc3,
				0x48, 0x89, 0xc1,
				0x48, 0x89, 0xc2,
			}

			relocated, err := relocatePrologue(code, 0x1000, 0x3000, jumpLen(64), 64)

			Expect(err).ToNot(HaveOccurred())
			Expect(relocated[0]).To(Equal(byte(0xe8)))
			Expect(relocated[1:5]).To(Equal([]byte{0x00, 0xe1, 0xff, 0xff}))
		})

		It("copies a hot-patchable 32-bit prologue", func() {
			// mov edi,edi; push ebp; mov ebp,esp; sub esp,10h
			code := []byte{0x8b, 0xff, 0x55, 0x8b, 0xec, 0x83, 0xec, 0x10}

			relocated, err := relocatePrologue(code, 0x76001000, 0x00400000, jumpLen(32), 32)

			Expect(err).ToNot(HaveOccurred())
			Expect(relocated).To(Equal(code[:5]))
		})

		DescribeTable("rejects code it cannot move",
			func(code []byte, newAddress uintptr) {
				relocated, err := relocatePrologue(code, 0x7ff800001000, newAddress, jumpLen(64), 64)

				Expect(err).To(MatchError(errNotRelocatable))
				Expect(relocated).To(BeNil())
			},
			Entry("short conditional branch", []byte{0x74, 0x05, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90}, uintptr(0x7ff800002000)),
			Entry("return before the jump fits", []byte{0xc3, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90}, uintptr(0x7ff800002000)),
			Entry("operand target out of reach", []byte{0x48, 0x8b, 0x05, 0x10, 0x00, 0x00, 0x00, 0x48, 0x89, 0xc3, 0x48, 0x89, 0xc1, 0x90}, uintptr(0x100000)),
			Entry("code shorter than the jump", []byte{0x55, 0x57, 0x41, 0x54}, uintptr(0x7ff800002000)),
		)
	})

	Describe("encodeJump", func() {
		It("encodes an absolute jump in 64-bit mode", func() {
			Expect(encodeJump(0x1000, 0x1122334455667788, 64)).To(Equal([]byte{
				0xff, 0x25, 0x00, 0x00, 0x00, 0x00,
				0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11,
			}))
		})

		DescribeTable("encodes a relative jump in 32-bit mode", func(from, to uintptr, expected []byte) {
			Expect(encodeJump(from, to, 32)).To(Equal(expected))
		},
			Entry("forward", uintptr(0x1000), uintptr(0x2000), []byte{0xe9, 0xfb, 0x0f, 0x00, 0x00}),
			Entry("backward", uintptr(0x2000), uintptr(0x1000), []byte{0xe9, 0xfb, 0xef, 0xff, 0xff}),
		)

		It("matches the jump length", func() {
			Expect(encodeJump(0, 0, 64)).To(HaveLen(jumpLen(64)))
			Expect(encodeJump(0, 0, 32)).To(HaveLen(jumpLen(32)))
		})
	})

	DescribeTable("jumpDestination", func(code []byte, mode int, expected uintptr, expectedIndirect bool, expectedOk bool) {
		destination, indirect, ok := jumpDestination(code, 0x1000, mode)

		Expect(ok).To(Equal(expectedOk))
		Expect(destination).To(Equal(expected))
		Expect(indirect).To(Equal(expectedIndirect))
	},
		Entry("relative jump", []byte{0xe9, 0xfb, 0x0f, 0x00, 0x00}, 64, uintptr(0x2000), false, true),
		Entry("short jump", []byte{0xeb, 0x10}, 64, uintptr(0x1012), false, true),
		Entry("RIP-relative indirect jump", []byte{0xff, 0x25, 0x00, 0x00, 0x00, 0x00}, 64, uintptr(0x1006), true, true),
		Entry("absolute indirect jump", []byte{0xff, 0x25, 0x78, 0x56, 0x34, 0x12}, 32, uintptr(0x12345678), true, true),
		Entry("no jump", typicalPrologue, 64, uintptr(0), false, false),
	)
})
