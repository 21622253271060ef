// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package namespace

import (
	"errors"
	"log/slog"
	"os"

	"github.com/modhost/modhost/cmd/modhost/cmd/common"
	ns "github.com/modhost/modhost/internal/namespace"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const (
	pidFlagName  = "pid"
	pidFlagUsage = "Process id of the session manager"
)

func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "namespace",
		Short: "Session private namespace utilities",
	}

	var pid uint32

	nameCmd := &cobra.Command{
		Use:   "name",
		Short: "Print the private namespace name of a session manager; defaults to this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed(pidFlagName) {
				pid = uint32(os.Getpid())
			}
			pterm.Println(ns.MakeName(pid))
			return nil
		},
	}
	nameCmd.Flags().Uint32Var(&pid, pidFlagName, 0, pidFlagUsage)

	openCmd := &cobra.Command{
		Use:   "open",
		Short: "Check that the private namespace of a running session manager can be opened",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return open(pid)
		},
	}
	openCmd.Flags().Uint32Var(&pid, pidFlagName, 0, pidFlagUsage)
	if err := openCmd.MarkFlagRequired(pidFlagName); err != nil {
		panic(err)
	}

	cmd.AddCommand(nameCmd, openCmd)
	return cmd
}

func open(pid uint32) error {
	namespace, err := ns.Open(pid)
	if err != nil {
		if errors.Is(err, errors.ErrUnsupported) {
			return common.CreateFailure(common.SeverityWarning, "namespace-unsupported", "Private namespaces are not supported on this OS")
		}
		slog.Debug("Opening namespace failed", "pid", pid, "error", err)
		return common.CreateFailure(common.SeverityError, "namespace-open-failed", "Could not open namespace '%s': %v", ns.MakeName(pid), err)
	}

	defer func() {
		if err := namespace.Close(); err != nil {
			slog.Warn("could not close namespace", "error", err)
		}
	}()

	pterm.Success.Printfln("Namespace '%s' is open", namespace.Name())
	return nil
}
