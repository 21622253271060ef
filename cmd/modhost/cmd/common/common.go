// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/modhost/modhost/cmd/modhost/utils/logging"
	"github.com/modhost/modhost/internal/config"
	"github.com/spf13/cobra"
)

const CliName = "modhost"

type FailureSeverity uint8

type ContextKey string

type CmdFailure struct {
	Severity          FailureSeverity
	Code              string
	Message           string
	SuppressCliOutput bool
}

type CmdContext struct {
	config *config.Config
	logger *logging.Slogger
}

const (
	SeverityWarning FailureSeverity = 3
	SeverityError   FailureSeverity = 4

	ContextKeyCmdContext ContextKey = "cmd-context"

	OutputFlagName      = "output"
	OutputFlagShorthand = "o"
	OutputFlagUsage     = "Show all logs in terminal"
)

var errNoCmdContext = errors.New("command context not initialized")

func NewCmdContext(config *config.Config, logger *logging.Slogger) *CmdContext {
	return &CmdContext{config: config, logger: logger}
}

// GetCmdContext returns the context set up by the root command.
func GetCmdContext(cmd *cobra.Command) (*CmdContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errNoCmdContext
	}
	cmdContext, ok := ctx.Value(ContextKeyCmdContext).(*CmdContext)
	if !ok || cmdContext == nil {
		return nil, errNoCmdContext
	}
	return cmdContext, nil
}

func WithCmdContext(ctx context.Context, cmdContext *CmdContext) context.Context {
	return context.WithValue(ctx, ContextKeyCmdContext, cmdContext)
}

func (c *CmdContext) Config() *config.Config {
	return c.config
}

func (c *CmdContext) Logger() *logging.Slogger {
	return c.logger
}

func CreateFailure(severity FailureSeverity, code string, format string, a ...any) *CmdFailure {
	return &CmdFailure{
		Severity: severity,
		Code:     code,
		Message:  fmt.Sprintf(format, a...),
	}
}

func (c *CmdFailure) Error() string {
	return fmt.Sprintf("%s: %s", c.Code, c.Message)
}

func (s FailureSeverity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}
