// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package acl

import (
	"fmt"

	acl_pkg "github.com/hectane/go-acl"
	"github.com/hectane/go-acl/api"
	"golang.org/x/sys/windows"
)

type osApplier struct{}

func (osApplier) Apply(path string, replace bool, inherit bool, grants ...Grant) error {
	entries := make([]api.ExplicitAccess, 0, len(grants))
	for _, grant := range grants {
		sid, err := windows.StringToSid(grant.Sid)
		if err != nil {
			return fmt.Errorf("invalid SID '%s': %w", grant.Sid, err)
		}
		entries = append(entries, acl_pkg.GrantSid(grant.AccessMask, sid))
	}
	return acl_pkg.Apply(path, replace, inherit, entries...)
}
