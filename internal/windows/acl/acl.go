// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

// Package acl shares directories with every engine copy, whichever principal the hosting process runs as.
package acl

import (
	"fmt"
	"log/slog"
)

const (
	WorldSid = "S-1-1-0"

	GenericAll uint32 = 0x10000000
)

// Grant allows the principal identified by Sid the access in AccessMask.
type Grant struct {
	Sid        string
	AccessMask uint32
}

type Applier interface {
	// Apply adds the grants to the DACL of path, keeping existing entries unless replace is true.
	Apply(path string, replace bool, inherit bool, grants ...Grant) error
}

type Acl struct {
	applier Applier
}

const (
	keepExistingEntries = false
	inheritACEs         = true
)

func NewAcl(applier Applier) *Acl {
	return &Acl{applier: applier}
}

// NewOSAcl returns an Acl modifying the file system of the running OS.
func NewOSAcl() *Acl {
	return NewAcl(osApplier{})
}

// GrantWorldFullAccess lets everyone read and write path and everything created beneath it.
func (a *Acl) GrantWorldFullAccess(path string) error {
	return a.Grant(path, Grant{Sid: WorldSid, AccessMask: GenericAll})
}

func (a *Acl) Grant(path string, grants ...Grant) error {
	if len(grants) == 0 {
		return nil
	}

	slog.Debug("Granting access", "path", path, "grants", grants)

	if err := a.applier.Apply(path, keepExistingEntries, inheritACEs, grants...); err != nil {
		return fmt.Errorf("could not grant access to '%s': %w", path, err)
	}
	return nil
}
