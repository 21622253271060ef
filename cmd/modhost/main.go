// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/modhost/modhost/cmd/modhost/cmd"
	"github.com/modhost/modhost/cmd/modhost/cmd/common"
	"github.com/modhost/modhost/cmd/modhost/utils/logging"
	"github.com/modhost/modhost/internal/cli"

	"github.com/pterm/pterm"
)

func main() {
	logger := logging.NewSlogger()
	code := run(logger)

	logger.Flush()
	logger.Close()
	os.Exit(int(code))
}

func run(logger *logging.Slogger) (code cli.ExitCode) {
	defer func() {
		if r := recover(); r != nil {
			code = report(fmt.Errorf("panic: %v", r))
		}
	}()

	return report(cmd.CreateRootCmd(logger).ExecuteContext(context.Background()))
}

// report prints a command error to the user and the log file and maps it to the process exit code.
func report(err error) cli.ExitCode {
	if err == nil {
		return cli.ExitCodeSuccess
	}

	var failure *common.CmdFailure
	if !errors.As(err, &failure) {
		pterm.Error.Println(err)
		slog.Error("modhost failed", "error", err)
		return cli.ExitCodeFailure
	}

	if !failure.SuppressCliOutput {
		if failure.Severity == common.SeverityWarning {
			pterm.Warning.Println(failure.Message)
		} else {
			pterm.Error.Println(failure.Message)
		}
	}
	slog.Error("modhost command failed", "code", failure.Code, "severity", failure.Severity, "message", failure.Message)
	return cli.ExitCodeFailure
}
