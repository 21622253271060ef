// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package checkupdate

import (
	"context"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/modhost/modhost/cmd/modhost/cmd/common"
	"github.com/modhost/modhost/internal/profile"
	"github.com/modhost/modhost/internal/session"
	"github.com/modhost/modhost/internal/update"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const (
	asyncFlagName  = "async"
	asyncFlagUsage = "Run the check in the background and wait for its completion callback; Ctrl+C aborts it"
)

func NewCmd() *cobra.Command {
	var async bool

	cmd := &cobra.Command{
		Use:   "check-update",
		Short: "Report usage and check for updates once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return checkUpdate(cmd, async)
		},
	}
	cmd.Flags().BoolVar(&async, asyncFlagName, false, asyncFlagUsage)
	return cmd
}

func checkUpdate(cmd *cobra.Command, async bool) error {
	cmdContext, err := common.GetCmdContext(cmd)
	if err != nil {
		return err
	}
	cfg := cmdContext.Config()

	prof, err := profile.Load(filepath.Join(cfg.DataDir, profile.FileName))
	if err != nil {
		return err
	}

	manager := session.NewManager(cfg, prof)

	var result update.Result
	if async {
		result, err = checkAsync(cmd.Context(), manager)
	} else {
		result, err = manager.CheckForUpdates(cmd.Context())
	}
	if err != nil {
		return err
	}
	return printResult(result)
}

func checkAsync(ctx context.Context, manager *session.Manager) (update.Result, error) {
	options, err := manager.UpdateOptions()
	if err != nil {
		return update.Result{}, err
	}

	interruptCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	spinner, err := pterm.DefaultSpinner.Start("Checking for updates..")
	if err != nil {
		return update.Result{}, err
	}
	defer func() {
		if err := spinner.Stop(); err != nil {
			slog.Error("spinner stop", "error", err)
		}
	}()

	done := make(chan struct{})
	updateSession, err := update.Start(context.WithoutCancel(ctx), options, func() { close(done) })
	if err != nil {
		return update.Result{}, err
	}

	select {
	case <-done:
	case <-interruptCtx.Done():
		slog.Info("Aborting update check")
		updateSession.Abort()
		<-done
	}
	return updateSession.HandleResponse(), nil
}

func printResult(result update.Result) error {
	if !result.Succeeded() {
		return common.CreateFailure(common.SeverityWarning, "update-check-failed",
			"Update check failed (HTTP status %d): %v", result.StatusCode, result.Err)
	}

	switch result.UpdateStatus {
	case update.StatusUpdatesAvailable:
		pterm.Info.Println("Updates are available")
	case update.StatusNoUpdates:
		pterm.Success.Println("Everything is up to date")
	default:
		pterm.Warning.Println("Update status unknown")
	}
	return nil
}
