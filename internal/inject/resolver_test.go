// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package inject

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("image resolution", Label("unit"), func() {
	Describe("ImageFromCommandLine", func() {
		DescribeTable("returns the first token", func(commandLine, expected string) {
			Expect(ImageFromCommandLine(commandLine)).To(Equal(expected))
		},
			Entry("unquoted", `notepad.exe C:\file.txt`, "notepad.exe"),
			Entry("unquoted without args", `C:\Tools\tool.exe`, `C:\Tools\tool.exe`),
			Entry("quoted with blanks", `"C:\Program Files\App\app.exe" --flag "x y"`, `C:\Program Files\App\app.exe`),
			Entry("unterminated quote", `"C:\Program Files\App\app.exe`, `C:\Program Files\App\app.exe`),
			Entry("leading blanks", "  \tcmd.exe /c dir", "cmd.exe"),
			Entry("tab separated", "cmd.exe\t/c", "cmd.exe"),
			Entry("empty", "", ""),
		)
	})

	Describe("ImagePath", func() {
		It("prefers the image of the created process", func() {
			resolver := &imageResolver{exeOf: func(pid int32) (string, error) {
				Expect(pid).To(Equal(int32(1234)))
				return `C:\Real\image.exe`, nil
			}}

			image, err := resolver.ImagePath(&CreateProcessCall{
				ApplicationName: `C:\Requested\app.exe`,
				Info:            ProcessInformation{ProcessID: 1234},
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(image).To(Equal(`C:\Real\image.exe`))
		})

		It("falls back to the application name when the process cannot be queried", func() {
			resolver := &imageResolver{exeOf: func(int32) (string, error) { return "", errors.New("gone") }}

			image, err := resolver.ImagePath(&CreateProcessCall{
				ApplicationName: `C:\Requested\app.exe`,
				CommandLine:     "other.exe",
				Info:            ProcessInformation{ProcessID: 1234},
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(image).To(Equal(`C:\Requested\app.exe`))
		})

		It("falls back to the command line without process id and application name", func() {
			resolver := &imageResolver{exeOf: func(int32) (string, error) {
				Fail("must not query the process without id")
				return "", nil
			}}

			image, err := resolver.ImagePath(&CreateProcessCall{CommandLine: `"C:\My Tools\tool.exe" -v`})

			Expect(err).ToNot(HaveOccurred())
			Expect(image).To(Equal(`C:\My Tools\tool.exe`))
		})

		It("returns error when nothing identifies the image", func() {
			resolver := &imageResolver{exeOf: processExe}

			image, err := resolver.ImagePath(&CreateProcessCall{CommandLine: "   "})

			Expect(err).To(MatchError(errNoImage))
			Expect(image).To(BeEmpty())
		})

		It("resolves the image of a running process", func() {
			expected, err := os.Executable()
			Expect(err).ToNot(HaveOccurred())
			expected, err = filepath.EvalSymlinks(expected)
			Expect(err).ToNot(HaveOccurred())

			image, err := NewImageResolver().ImagePath(&CreateProcessCall{
				Info: ProcessInformation{ProcessID: uint32(os.Getpid())},
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(filepath.EvalSymlinks(image)).To(Equal(expected))
		})
	})

	Describe("NewDirectInstaller", func() {
		It("returns the given function as original", func() {
			called := false
			installer := NewDirectInstaller(func(*CreateProcessCall) error {
				called = true
				return nil
			})

			original, err := installer.Original()
			Expect(err).ToNot(HaveOccurred())
			Expect(installer.Install(nil)).To(Succeed())
			Expect(original(&CreateProcessCall{})).To(Succeed())
			Expect(called).To(BeTrue())
			Expect(installer.Uninstall()).To(Succeed())
		})

		It("returns error without function", func() {
			_, err := NewDirectInstaller(nil).Original()

			Expect(err).To(HaveOccurred())
		})
	})
})
