// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package launch

import (
	"log/slog"
	"strings"

	"github.com/modhost/modhost/cmd/modhost/cmd/common"
	"github.com/modhost/modhost/internal/inject"
	"github.com/modhost/modhost/internal/namespace"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const (
	waitFlagName  = "wait"
	waitFlagUsage = "Wait for the launched process to exit and return its exit code"

	sessionPidFlagName  = "session-pid"
	sessionPidFlagUsage = "Process id of a running session manager ('modhost run') the engine joins; standalone engine if not set"
)

func NewCmd() *cobra.Command {
	var wait bool
	var sessionPid uint32

	cmd := &cobra.Command{
		Use:   "launch -- <exe> [args...]",
		Short: "Start a process with the engine injected according to the injection policy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return launch(cmd, args, wait, sessionPid)
		},
	}
	cmd.Flags().BoolVar(&wait, waitFlagName, false, waitFlagUsage)
	cmd.Flags().Uint32Var(&sessionPid, sessionPidFlagName, 0, sessionPidFlagUsage)
	return cmd
}

func launch(cmd *cobra.Command, args []string, wait bool, sessionPid uint32) error {
	cmdContext, err := common.GetCmdContext(cmd)
	if err != nil {
		return err
	}
	cfg := cmdContext.Config()

	if cfg.Engine.Dll == "" {
		return common.CreateFailure(common.SeverityWarning, "no-engine", "No engine DLL configured, set 'engine.dll' or '--engine-dll'")
	}

	injector, err := inject.NewDLLInjector(cfg.Engine.Dll)
	if err != nil {
		return err
	}

	sessionManager, err := openSessionManager(sessionPid)
	if err != nil {
		return err
	}
	if sessionManager != 0 {
		defer func() {
			if err := inject.CloseHandle(sessionManager); err != nil {
				slog.Warn("could not close session manager handle", "error", err)
			}
		}()
	}

	gate, err := inject.NewGate(sessionManager, cfg.Injection.Policy(), inject.NewDirectInstaller(inject.CreateProcess), injector)
	if err != nil {
		return err
	}
	defer func() {
		if err := gate.Close(); err != nil {
			slog.Error("could not close process creation gate", "error", err)
		}
	}()

	call := &inject.CreateProcessCall{CommandLine: commandLine(args)}
	if err := gate.Intercept(call); err != nil {
		return err
	}
	defer func() {
		if err := inject.CloseHandles(call.Info); err != nil {
			slog.Warn("could not close process handles", "error", err)
		}
	}()

	pterm.Success.Printfln("Started '%s' with pid %d", args[0], call.Info.ProcessID)

	if !wait {
		return nil
	}

	exitCode, err := inject.WaitForExit(call.Info)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return common.CreateFailure(common.SeverityWarning, "process-failed", "Process exited with code %d", exitCode)
	}
	return nil
}

// openSessionManager returns a handle of the session manager after making sure its session namespace exists,
// 0 when no session was requested.
func openSessionManager(pid uint32) (uintptr, error) {
	if pid == 0 {
		return 0, nil
	}

	ns, err := namespace.Open(pid)
	if err != nil {
		return 0, common.CreateFailure(common.SeverityWarning, "no-session", "No session of pid %d: %v", pid, err)
	}
	if err := ns.Close(); err != nil {
		slog.Warn("could not close session namespace", "error", err)
	}

	return inject.OpenProcess(pid)
}

// commandLine joins the arguments the way the OS splits them again; arguments with blanks or quotes are quoted.
func commandLine(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		quoted = append(quoted, quoteArg(arg))
	}
	return strings.Join(quoted, " ")
}

func quoteArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\"") {
		return arg
	}

	var b strings.Builder
	b.WriteByte('"')
	backslashes := 0
	for _, r := range arg {
		switch r {
		case '\\':
			backslashes++
			continue
		case '"':
			b.WriteString(strings.Repeat(`\`, 2*backslashes+1))
		default:
			b.WriteString(strings.Repeat(`\`, backslashes))
		}
		backslashes = 0
		b.WriteRune(r)
	}
	b.WriteString(strings.Repeat(`\`, 2*backslashes))
	b.WriteByte('"')
	return b.String()
}
