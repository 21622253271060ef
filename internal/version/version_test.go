// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT
package version

import (
	"log/slog"
	"runtime/debug"
	"testing"

	"github.com/go-logr/logr"
	"github.com/modhost/modhost/internal/reflection"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"
)

type printerMock struct {
	mock.Mock
}

func (m *printerMock) print(format string, a ...any) {
	m.Called(format, a)
}

func TestVersion(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "version Unit Tests", Label("unit", "ci"))
}

var _ = BeforeSuite(func() {
	slog.SetDefault(slog.New(logr.ToSlogHandler(GinkgoLogr)))
})

func stampBuild(settings ...debug.BuildSetting) {
	original := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: settings}, true
	}
	DeferCleanup(func() { readBuildInfo = original })
}

var _ = Describe("version pkg", func() {
	BeforeEach(func() {
		commit = ""
	})

	Describe("GetVersion", func() {
		It("reports the plain engine version for builds without vcs stamp", func() {
			stampBuild()

			Expect(GetVersion().String()).To(Equal("99.99.99"))
		})

		It("appends the short vcs revision and a dirty marker", func() {
			stampBuild(
				debug.BuildSetting{Key: "vcs.revision", Value: "abcdefg12345"},
				debug.BuildSetting{Key: "vcs.modified", Value: "true"},
			)

			Expect(GetVersion().String()).To(Equal("99.99.99+abcdefg.dirty"))
		})

		It("prefers the linked commit over the vcs stamp", func() {
			commit = "1234567890"
			stampBuild(debug.BuildSetting{Key: "vcs.revision", Value: "abcdefg12345"})

			v := GetVersion()

			Expect(v.String()).To(Equal("99.99.99+1234567"))
			Expect(v.Modified).To(BeFalse())
		})
	})

	Describe("EngineVersion", func() {
		It("returns the plain version without build metadata", func() {
			commit = "abcdefg12345"

			Expect(EngineVersion()).To(Equal("99.99.99"))
		})
	})

	Describe("Print", func() {
		When("print function is provided", func() {
			It("prints the version information using this print function", func() {
				printerMock := &printerMock{}
				printerMock.On(reflection.GetFunctionName(printerMock.print), mock.Anything, mock.Anything)

				Version{Commit: "abcdefg12345"}.Print("", printerMock.print)

				printerMock.AssertNumberOfCalls(GinkgoT(), reflection.GetFunctionName(printerMock.print), 4)
			})
		})
	})
})
