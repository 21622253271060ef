// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package inject_test

import (
	"os/exec"
	"sync"

	"github.com/modhost/modhost/internal/inject"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/windows"
)

// recordingInjector records the images it was asked to inject into and resumes processes for real.
type recordingInjector struct {
	mu       sync.Mutex
	injected []uint32
}

func (r *recordingInjector) Inject(info inject.ProcessInformation, _ inject.InjectOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.injected = append(r.injected, info.ProcessID)
	return nil
}

func (r *recordingInjector) Resume(info inject.ProcessInformation) error {
	_, err := windows.ResumeThread(windows.Handle(info.Thread))
	return err
}

func (r *recordingInjector) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.injected)
}

var _ = Describe("EntryHookInstaller", Label("integration", "windows"), Serial, func() {
	It("intercepts processes created through CreateProcessW until closed", func() {
		injector := &recordingInjector{}

		gate, err := inject.NewGate(0, inject.Policy{Include: "cmd.exe"}, inject.NewEntryHookInstaller(), injector)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(gate.Close)

		Expect(exec.Command("cmd.exe", "/c", "exit", "0").Run()).To(Succeed())
		Expect(injector.count()).To(Equal(1))

		Expect(gate.Close()).To(Succeed())

		Expect(exec.Command("cmd.exe", "/c", "exit", "0").Run()).To(Succeed())
		Expect(injector.count()).To(Equal(1))
	})

	It("leaves processes outside the policy untouched but running", func() {
		injector := &recordingInjector{}

		gate, err := inject.NewGate(0, inject.Policy{Exclude: "cmd.exe"}, inject.NewEntryHookInstaller(), injector)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(gate.Close)

		Expect(exec.Command("cmd.exe", "/c", "exit", "0").Run()).To(Succeed())
		Expect(injector.count()).To(BeZero())
	})
})
