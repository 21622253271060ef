// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package run

import (
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/modhost/modhost/cmd/modhost/cmd/common"
	"github.com/modhost/modhost/internal/profile"
	"github.com/modhost/modhost/internal/session"
	"github.com/modhost/modhost/internal/update"
	"github.com/modhost/modhost/internal/version"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the session manager until interrupted",
	Long: "Runs the session manager: creates the session private namespace engine copies attach to, " +
		"and reports usage and checks for updates right away and then periodically.",
	Args: cobra.NoArgs,
	RunE: run,
}

func run(cmd *cobra.Command, _ []string) error {
	cmdContext, err := common.GetCmdContext(cmd)
	if err != nil {
		return err
	}
	cfg := cmdContext.Config()

	prof, err := profile.Load(filepath.Join(cfg.DataDir, profile.FileName))
	if err != nil {
		return err
	}
	if err := prof.SetAppVersion(version.EngineVersion()); err != nil {
		return err
	}

	slog.Info("Profile loaded", "install-id", prof.InstallID(), "mods", len(prof.Mods()))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pterm.Info.Printfln("Session manager running, press Ctrl+C to stop")

	return session.NewManager(cfg, prof).Run(ctx, func(result update.Result) {
		if result.Succeeded() && result.UpdateStatus == update.StatusUpdatesAvailable {
			pterm.Info.Printfln("Updates are available (latest version %s)", prof.LatestAppVersion())
		}
	})
}
