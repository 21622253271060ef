// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package inject_test

import (
	"unsafe"

	"github.com/modhost/modhost/internal/inject"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("InitArgs", func() {
	It("has the fixed raw layout", func() {
		var args inject.InitArgs

		Expect(unsafe.Sizeof(args)).To(Equal(uintptr(16)))
		Expect(unsafe.Offsetof(args.Flags)).To(Equal(uintptr(8)))
	})

	DescribeTable("NewInitArgs",
		func(options inject.InjectOptions, expectedFlags uint32) {
			args := inject.NewInitArgs(0x1234, options)

			Expect(args.SessionManagerProcess).To(Equal(uint64(0x1234)))
			Expect(args.Flags).To(Equal(expectedFlags))
			Expect(args.ThreadAttachExempt()).To(Equal(options.ThreadAttachExempt))
		},
		Entry("regular", inject.InjectOptions{}, uint32(0)),
		Entry("thread attach exempt", inject.InjectOptions{ThreadAttachExempt: true}, inject.InitFlagThreadAttachExempt),
	)
})
