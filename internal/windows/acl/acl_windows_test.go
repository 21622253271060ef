// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package acl_test

import (
	"github.com/modhost/modhost/internal/windows/acl"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/windows"
)

var _ = Describe("OS acl", Label("integration", "windows"), func() {
	It("grants everyone full access on a directory", func() {
		dir := GinkgoT().TempDir()

		Expect(acl.NewOSAcl().GrantWorldFullAccess(dir)).To(Succeed())
	})

	It("adds an allow entry for everyone to the directory's DACL", func() {
		dir := GinkgoT().TempDir()

		Expect(acl.NewOSAcl().GrantWorldFullAccess(dir)).To(Succeed())

		descriptor, err := windows.GetNamedSecurityInfo(dir, windows.SE_FILE_OBJECT, windows.DACL_SECURITY_INFORMATION)
		Expect(err).ToNot(HaveOccurred())
		Expect(descriptor.String()).To(MatchRegexp(`\(A;[A-Z]*;(FA|GA);;;WD\)`))
	})

	It("rejects invalid SIDs", func() {
		dir := GinkgoT().TempDir()

		Expect(acl.NewOSAcl().Grant(dir, acl.Grant{Sid: "nope", AccessMask: acl.GenericAll})).To(MatchError(ContainSubstring("invalid SID")))
	})
})
