// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package cmd

import (
	"log/slog"

	"github.com/modhost/modhost/cmd/modhost/cmd/checkupdate"
	cc "github.com/modhost/modhost/cmd/modhost/cmd/common"
	co "github.com/modhost/modhost/cmd/modhost/cmd/config"
	"github.com/modhost/modhost/cmd/modhost/cmd/launch"
	"github.com/modhost/modhost/cmd/modhost/cmd/mod"
	"github.com/modhost/modhost/cmd/modhost/cmd/namespace"
	"github.com/modhost/modhost/cmd/modhost/cmd/run"
	ve "github.com/modhost/modhost/cmd/modhost/cmd/version"
	"github.com/modhost/modhost/cmd/modhost/utils/logging"
	"github.com/modhost/modhost/internal/cli"
	"github.com/modhost/modhost/internal/config"
	"github.com/modhost/modhost/internal/host"
	bl "github.com/modhost/modhost/internal/logging"

	"github.com/spf13/cobra"
)

func CreateRootCmd(logger *logging.Slogger) *cobra.Command {
	verbosity := bl.LevelToLowerString(slog.LevelInfo)
	showLog := false
	configPath := ""

	cmd := &cobra.Command{
		Use:               cc.CliName,
		Short:             "modhost - session manager of the modhost customization engine",
		SilenceErrors:     true,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.SetVerbosity(verbosity); err != nil {
				return err
			}

			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}

			logHandlers := []logging.HandlerBuilder{logging.NewFileHandler(bl.LogFilePath(cfg.DataDir, cc.CliName+".exe"))}
			if showLog {
				logHandlers = append(logHandlers, logging.NewCliHandler())
			}
			logger.SetHandlers(logHandlers...).SetGlobally()

			slog.Debug("config loaded", "config", cfg, "platform", host.Platform())

			cmd.SetContext(cc.WithCmdContext(cmd.Context(), cc.NewCmdContext(cfg, logger)))
			return nil
		},
	}

	cmd.AddCommand(run.RunCmd)
	cmd.AddCommand(checkupdate.NewCmd())
	cmd.AddCommand(namespace.NewCmd())
	cmd.AddCommand(launch.NewCmd())
	cmd.AddCommand(mod.NewCmd())
	cmd.AddCommand(co.NewCmd())
	cmd.AddCommand(ve.VersionCmd)

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.BoolVarP(&showLog, cc.OutputFlagName, cc.OutputFlagShorthand, showLog, cc.OutputFlagUsage)
	persistentFlags.StringVarP(&verbosity, cli.VerbosityFlagName, cli.VerbosityFlagShorthand, verbosity, cli.VerbosityFlagHelp())
	persistentFlags.StringVarP(&configPath, cli.ConfigFlagName, cli.ConfigFlagShorthand, configPath, cli.ConfigFlagUsage)
	config.AddFlags(persistentFlags)

	return cmd
}
