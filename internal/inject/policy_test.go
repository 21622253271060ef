// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package inject_test

import (
	"github.com/modhost/modhost/internal/inject"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Policy", Label("unit"), func() {
	const notepad = `C:\Windows\System32\notepad.exe`
	const game = `D:\Games\Some Game\game.exe`

	Describe("MatchPattern", func() {
		DescribeTable("matches image paths", func(patterns, path string, expected bool) {
			Expect(inject.MatchPattern(patterns, path)).To(Equal(expected))
		},
			Entry("file name", "notepad.exe", notepad, true),
			Entry("file name case-insensitive", "NotePad.EXE", notepad, true),
			Entry("file name wildcard", "note*.exe", notepad, true),
			Entry("single char wildcard", "notepa?.exe", notepad, true),
			Entry("single char wildcard needs exactly one char", "notepad?.exe", notepad, false),
			Entry("file name pattern does not match directories", "system32", notepad, false),
			Entry("full path", `c:\windows\system32\notepad.exe`, notepad, true),
			Entry("path wildcard spans separators", `C:\Windows\*.exe`, notepad, true),
			Entry("forward slashes", `C:/Windows/System32/notepad.exe`, notepad, true),
			Entry("list with blanks", " calc.exe | notepad.exe ", notepad, true),
			Entry("list without match", "calc.exe|mspaint.exe", notepad, false),
			Entry("empty list", "", notepad, false),
			Entry("empty entries", "||", notepad, false),
			Entry("star matches everything", "*", game, true),
			Entry("path with blanks", `d:\games\*\game.exe`, game, true),
			Entry("trailing stars", "game.exe**", game, true),
		)

		It("expands environment variables", func() {
			GinkgoT().Setenv("MODHOST_TEST_DIR", `D:\Games`)

			Expect(inject.MatchPattern(`%MODHOST_TEST_DIR%\*`, game)).To(BeTrue())
		})

		It("keeps unknown environment variables literally", func() {
			Expect(inject.MatchPattern(`%MODHOST_UNKNOWN_VAR%\game.exe`, game)).To(BeFalse())
			Expect(inject.MatchPattern(`%MODHOST_UNKNOWN_VAR%\game.exe`, `%MODHOST_UNKNOWN_VAR%\game.exe`)).To(BeTrue())
		})
	})

	Describe("ShouldSkipNewProcess", func() {
		DescribeTable("decides per image path", func(policy inject.Policy, path string, expected bool) {
			Expect(policy.ShouldSkipNewProcess(path)).To(Equal(expected))
		},
			Entry("empty policy includes everything", inject.Policy{}, notepad, false),
			Entry("excluded", inject.Policy{Exclude: "notepad.exe"}, notepad, true),
			Entry("not excluded", inject.Policy{Exclude: "calc.exe"}, notepad, false),
			Entry("included", inject.Policy{Include: "notepad.exe"}, notepad, false),
			Entry("not included", inject.Policy{Include: "calc.exe"}, notepad, true),
			Entry("exclude wins over include", inject.Policy{Include: "*", Exclude: "notepad.exe"}, notepad, true),
			Entry("blank include list includes everything", inject.Policy{Include: " | "}, notepad, false),
		)

		When("SystemRoot is known", func() {
			BeforeEach(func() {
				GinkgoT().Setenv("SystemRoot", `C:\Windows`)
			})

			It("skips critical system processes", func() {
				Expect(inject.Policy{}.ShouldSkipNewProcess(`C:\Windows\System32\csrss.exe`)).To(BeTrue())
				Expect(inject.Policy{Include: "*"}.ShouldSkipNewProcess(`C:\WINDOWS\system32\winlogon.exe`)).To(BeTrue())
			})

			It("only treats the system copies as critical", func() {
				Expect(inject.Policy{}.ShouldSkipNewProcess(`D:\Tools\csrss.exe`)).To(BeFalse())
			})

			It("includes critical processes on request", func() {
				policy := inject.Policy{IncludeCritical: true}

				Expect(policy.ShouldSkipNewProcess(`C:\Windows\System32\lsass.exe`)).To(BeFalse())
			})

			It("still excludes critical processes on request", func() {
				policy := inject.Policy{IncludeCritical: true, Exclude: "lsass.exe"}

				Expect(policy.ShouldSkipNewProcess(`C:\Windows\System32\lsass.exe`)).To(BeTrue())
			})
		})

		It("is consistent with the include/exclude rule for all combinations", func() {
			paths := []string{notepad, game, `C:\Tools\calc.exe`}
			patterns := []string{"", "notepad.exe", "*.exe", "calc.exe|game.exe", `d:\*`}

			for _, include := range patterns {
				for _, exclude := range patterns {
					policy := inject.Policy{Include: include, Exclude: exclude}
					for _, path := range paths {
						excluded := inject.MatchPattern(exclude, path)
						notIncluded := include != "" && !inject.MatchPattern(include, path)

						Expect(policy.ShouldSkipNewProcess(path)).To(Equal(excluded || notIncluded),
							"include=%q exclude=%q path=%q", include, exclude, path)
					}
				}
			}
		})
	})

	Describe("ShouldAttachExemptThread", func() {
		It("matches independently of include and exclude", func() {
			policy := inject.Policy{Exclude: "notepad.exe", ThreadAttachExempt: "notepad.exe"}

			Expect(policy.ShouldAttachExemptThread(notepad)).To(BeTrue())
			Expect(policy.ShouldAttachExemptThread(game)).To(BeFalse())
		})
	})
})
