// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

// Package namespace isolates kernel objects of one running session manager in a private
// object namespace. Every process joining a session computes the namespace name from the
// session manager's process id on its own; there is no discovery protocol, so MakeName is
// part of the cross-process contract and must not change between engine versions.
package namespace

import "fmt"

const (
	// NamePrefix identifies modhost session namespaces.
	NamePrefix = "ModhostSession"

	// process ids are formatted zero-padded into a field wide enough for any uint32
	pidWidth = 10

	// MaxNameLen is the length of every name returned by MakeName.
	MaxNameLen = len(NamePrefix) + pidWidth
)

// MakeName returns the private namespace name of the session manager with the given process id.
// The same string also names the boundary descriptor.
func MakeName(sessionManagerPid uint32) string {
	return fmt.Sprintf("%s%0*d", NamePrefix, pidWidth, sessionManagerPid)
}
