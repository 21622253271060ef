// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

//go:build !windows

package namespace

import (
	"errors"
	"fmt"
)

func Create(sessionManagerPid uint32) (*Namespace, error) {
	return nil, fmt.Errorf("could not create private namespace '%s': %w", MakeName(sessionManagerPid), errors.ErrUnsupported)
}

func Open(sessionManagerPid uint32) (*Namespace, error) {
	return nil, fmt.Errorf("could not open private namespace '%s': %w", MakeName(sessionManagerPid), errors.ErrUnsupported)
}

func closeNamespace(uintptr, bool) error {
	return nil
}
