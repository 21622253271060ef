// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package version

import (
	"github.com/modhost/modhost/cmd/modhost/cmd/common"
	"github.com/modhost/modhost/internal/cli"
	ve "github.com/modhost/modhost/internal/version"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var VersionCmd = &cobra.Command{
	Use:   cli.VersionFlagName,
	Short: cli.NewVersionFlagHint("modhost"),
	RunE:  showVersion,
}

func showVersion(_ *cobra.Command, _ []string) error {
	ve.GetVersion().Print(common.CliName, pterm.Printf)
	return nil
}
