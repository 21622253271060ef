// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package common_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/go-logr/logr"
	"github.com/modhost/modhost/cmd/modhost/cmd/common"
	"github.com/modhost/modhost/cmd/modhost/utils/logging"
	"github.com/modhost/modhost/internal/config"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
)

func TestCommonPkg(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "common pkg Unit Tests", Label("unit", "ci", "common"))
}

var _ = BeforeSuite(func() {
	slog.SetDefault(slog.New(logr.ToSlogHandler(GinkgoLogr)))
})

var _ = Describe("common pkg", func() {
	Describe("CmdFailure", func() {
		It("formats code and message", func() {
			failure := common.CreateFailure(common.SeverityWarning, "update-check-failed", "status %d", 405)

			Expect(failure.Error()).To(Equal("update-check-failed: status 405"))
			Expect(failure.Severity.String()).To(Equal("warning"))
		})

		DescribeTable("Severity.String", func(severity common.FailureSeverity, expected string) {
			Expect(severity.String()).To(Equal(expected))
		},
			Entry("warning", common.SeverityWarning, "warning"),
			Entry("error", common.SeverityError, "error"),
			Entry("unknown", common.FailureSeverity(0), "unknown"),
		)
	})

	Describe("GetCmdContext", func() {
		It("returns the context set up before", func() {
			cmdContext := common.NewCmdContext(&config.Config{DataDir: "dir"}, logging.NewSlogger())
			cmd := &cobra.Command{}
			cmd.SetContext(common.WithCmdContext(context.Background(), cmdContext))

			actual, err := common.GetCmdContext(cmd)

			Expect(err).ToNot(HaveOccurred())
			Expect(actual.Config().DataDir).To(Equal("dir"))
		})

		It("returns error without context", func() {
			cmd := &cobra.Command{}
			cmd.SetContext(context.Background())

			_, err := common.GetCmdContext(cmd)

			Expect(err).To(HaveOccurred())
		})
	})
})
