// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

//go:build !windows

package engine

import "errors"

func processIDOf(uintptr) (uint32, error) {
	return 0, errors.ErrUnsupported
}

func ModulePath() (string, error) {
	return "", errors.ErrUnsupported
}
