// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package config

import (
	"fmt"

	"github.com/modhost/modhost/cmd/modhost/cmd/common"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML, including defaults and flag overrides",
		Args:  cobra.NoArgs,
		RunE:  showConfig,
	})
	return cmd
}

func showConfig(cmd *cobra.Command, _ []string) error {
	cmdContext, err := common.GetCmdContext(cmd)
	if err != nil {
		return err
	}

	content, err := yaml.Marshal(cmdContext.Config())
	if err != nil {
		return fmt.Errorf("could not serialize config: %w", err)
	}

	pterm.Print(string(content))
	return nil
}
