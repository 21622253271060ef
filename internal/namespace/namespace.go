// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package namespace

import (
	"log/slog"
	"sync"
)

// Namespace is a created or opened private namespace. It is owned exclusively by its creator;
// other components share objects by name, never by handing over the Namespace.
type Namespace struct {
	name    string
	handle  uintptr
	destroy bool

	closeOnce sync.Once
	closeErr  error
}

// Name returns the namespace name, which equals the boundary name.
func (n *Namespace) Name() string {
	return n.name
}

// ObjectName qualifies the given kernel object name with the namespace,
// e.g. 'ModhostSession0000004242\ConfigChanged'.
func (n *Namespace) ObjectName(object string) string {
	return n.name + `\` + object
}

// Close closes the namespace handle. A namespace obtained from Create is destroyed as well,
// so that no process can open it afterwards. Repeated calls return the first result.
func (n *Namespace) Close() error {
	n.closeOnce.Do(func() {
		slog.Debug("Closing private namespace", "name", n.name, "destroy", n.destroy)

		n.closeErr = closeNamespace(n.handle, n.destroy)
	})
	return n.closeErr
}
