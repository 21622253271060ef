// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package inject

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

var errNoImage = errors.New("neither process id, application name nor command line identify the image")

type imageResolver struct {
	exeOf func(pid int32) (string, error)
}

// NewImageResolver returns the default resolver, which queries the image path of the created process
// and falls back to the path the caller asked for.
func NewImageResolver() ImageResolver {
	return &imageResolver{exeOf: processExe}
}

func (r *imageResolver) ImagePath(call *CreateProcessCall) (string, error) {
	if call.Info.ProcessID != 0 {
		exe, err := r.exeOf(int32(call.Info.ProcessID))
		if err == nil && exe != "" {
			return exe, nil
		}
		slog.Debug("could not query image of created process, falling back to call arguments", "pid", call.Info.ProcessID, "error", err)
	}

	if call.ApplicationName != "" {
		return call.ApplicationName, nil
	}
	if image := ImageFromCommandLine(call.CommandLine); image != "" {
		return image, nil
	}
	return "", errNoImage
}

// ImageFromCommandLine returns the first command line token the way the OS determines
// the image when no application name is given: either quoted, or up to the first blank.
func ImageFromCommandLine(commandLine string) string {
	commandLine = strings.TrimLeft(commandLine, " \t")

	if rest, quoted := strings.CutPrefix(commandLine, `"`); quoted {
		image, _, _ := strings.Cut(rest, `"`)
		return image
	}

	if end := strings.IndexAny(commandLine, " \t"); end >= 0 {
		return commandLine[:end]
	}
	return commandLine
}

func processExe(pid int32) (string, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return "", err
	}
	return proc.Exe()
}

type directInstaller struct {
	create CreateProcessFunc
}

// NewDirectInstaller returns a HookInstaller without any hook: callers route process creation
// through Gate.Intercept explicitly, the given function acts as the unhooked implementation.
func NewDirectInstaller(create CreateProcessFunc) HookInstaller {
	return &directInstaller{create: create}
}

func (d *directInstaller) Original() (CreateProcessFunc, error) {
	if d.create == nil {
		return nil, errors.New("no process creation function given")
	}
	return d.create, nil
}

func (d *directInstaller) Install(CreateProcessFunc) error { return nil }

func (d *directInstaller) Uninstall() error { return nil }
