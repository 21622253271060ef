// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

//go:build windows

package namespace_test

import (
	"os"

	"github.com/modhost/modhost/internal/namespace"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/windows"
)

var _ = Describe("private namespace", Label("integration", "windows"), func() {
	var pid uint32

	BeforeEach(func() {
		pid = uint32(os.Getpid())
	})

	When("namespace was created", func() {
		var created *namespace.Namespace

		BeforeEach(func() {
			var err error
			created, err = namespace.Create(pid)
			Expect(err).ToNot(HaveOccurred())

			DeferCleanup(func() {
				Expect(created.Close()).To(Succeed())
			})
		})

		It("uses the session name", func() {
			Expect(created.Name()).To(Equal(namespace.MakeName(pid)))
		})

		It("can be opened by another caller sharing objects by name", func() {
			opened, err := namespace.Open(pid)
			Expect(err).ToNot(HaveOccurred())
			defer opened.Close()

			eventName, err := windows.UTF16PtrFromString(created.ObjectName("SharedEvent"))
			Expect(err).ToNot(HaveOccurred())

			event, err := windows.CreateEvent(nil, 0, 0, eventName)
			Expect(err).ToNot(HaveOccurred())
			defer windows.CloseHandle(event)

			lookupName, err := windows.UTF16PtrFromString(opened.ObjectName("SharedEvent"))
			Expect(err).ToNot(HaveOccurred())

			found, err := windows.OpenEvent(windows.SYNCHRONIZE, false, lookupName)
			Expect(err).ToNot(HaveOccurred())
			Expect(windows.CloseHandle(found)).To(Succeed())
		})

		It("cannot be created a second time", func() {
			_, err := namespace.Create(pid)

			Expect(err).To(MatchError(ContainSubstring("CreatePrivateNamespaceW")))
		})

		It("tolerates repeated Close", func() {
			other, err := namespace.Open(pid)
			Expect(err).ToNot(HaveOccurred())

			Expect(other.Close()).To(Succeed())
			Expect(other.Close()).To(Succeed())
		})
	})

	When("namespace was never created", func() {
		It("fails to open", func() {
			_, err := namespace.Open(pid)

			Expect(err).To(MatchError(ContainSubstring("OpenPrivateNamespaceW")))
		})
	})

	When("namespace was created and closed", func() {
		It("cannot be opened anymore", func() {
			created, err := namespace.Create(pid)
			Expect(err).ToNot(HaveOccurred())
			Expect(created.Close()).To(Succeed())

			_, err = namespace.Open(pid)

			Expect(err).To(HaveOccurred())
		})
	})
})
