// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package inject

import (
	"time"
	"unsafe"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/windows"
)

func regionState(address uintptr) uint32 {
	var info windows.MemoryBasicInformation
	Expect(windows.VirtualQuery(address, &info, unsafe.Sizeof(info))).To(Succeed())
	return info.State
}

var _ = Describe("remote thread buffers", Label("integration", "windows"), Serial, func() {
	var process windows.Handle

	BeforeEach(func() {
		process = windows.CurrentProcess()

		timeout := remoteThreadTimeout
		remoteThreadTimeout = 50 * time.Millisecond
		DeferCleanup(func() { remoteThreadTimeout = timeout })
	})

	It("reports a timeout when the remote thread keeps running", func() {
		sleep := kernel32.NewProc("Sleep")

		_, err := runRemoteThread(process, sleep.Addr(), 2000)

		Expect(err).To(MatchError(errRemoteThreadTimeout))
	})

	It("keeps the buffer of a timed out thread allocated", func() {
		address, err := writeRemote(process, []byte("argument buffer"))
		Expect(err).ToNot(HaveOccurred())

		releaseRemote(process, address, errRemoteThreadTimeout)

		Expect(regionState(address)).To(Equal(uint32(windows.MEM_COMMIT)))
		freeRemote(process, address)
	})

	It("frees the buffer of a finished thread", func() {
		address, err := writeRemote(process, []byte("argument buffer"))
		Expect(err).ToNot(HaveOccurred())

		releaseRemote(process, address, nil)

		Expect(regionState(address)).ToNot(Equal(uint32(windows.MEM_COMMIT)))
	})
})
