// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package mod

import (
	"path/filepath"
	"slices"

	"github.com/modhost/modhost/cmd/modhost/cmd/common"
	"github.com/modhost/modhost/internal/profile"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mod",
		Short: "Record installed mods; changes are reported with the next update check",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List installed mods with the latest known versions",
		Args:  cobra.NoArgs,
		RunE:  list,
	}

	setCmd := &cobra.Command{
		Use:   "set <id> <version>",
		Short: "Record a mod as installed or updated",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProfile(cmd, func(prof *profile.Profile) error {
				if err := prof.SetMod(args[0], args[1]); err != nil {
					return err
				}
				pterm.Success.Printfln("Mod '%s' recorded with version %s", args[0], args[1])
				return nil
			})
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Record a mod as removed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProfile(cmd, func(prof *profile.Profile) error {
				if err := prof.RemoveMod(args[0]); err != nil {
					return err
				}
				pterm.Success.Printfln("Mod '%s' recorded as removed", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(listCmd, setCmd, removeCmd)
	return cmd
}

func list(cmd *cobra.Command, _ []string) error {
	return withProfile(cmd, func(prof *profile.Profile) error {
		mods := prof.Mods()
		if len(mods) == 0 {
			pterm.Info.Println("No mods installed")
			return nil
		}

		ids := lo.Keys(mods)
		slices.Sort(ids)

		data := pterm.TableData{{"Mod", "Version", "Latest"}}
		for _, id := range ids {
			data = append(data, []string{id, mods[id].Version, mods[id].LatestVersion})
		}

		pterm.Printfln("Install id: %s", prof.InstallID())
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	})
}

func withProfile(cmd *cobra.Command, do func(prof *profile.Profile) error) error {
	cmdContext, err := common.GetCmdContext(cmd)
	if err != nil {
		return err
	}

	prof, err := profile.Load(filepath.Join(cmdContext.Config().DataDir, profile.FileName))
	if err != nil {
		return err
	}
	return do(prof)
}
