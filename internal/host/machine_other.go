// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

//go:build !windows

package host

import "runtime"

func detectNativeMachine() uint16 {
	return machineFromArch(runtime.GOARCH)
}
