// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

//go:build !windows

package acl

import "errors"

type osApplier struct{}

func (osApplier) Apply(string, bool, bool, ...Grant) error {
	return errors.ErrUnsupported
}
