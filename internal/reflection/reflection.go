// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

// Package reflection supports setting up testify mocks by method value instead of by string literal.
package reflection

import (
	"reflect"
	"runtime"
	"strings"
)

// GetFunctionName returns the bare name of the given function or method value,
// e.g. 'Inject' for 'injectorMock.Inject'.
func GetFunctionName(function any) string {
	fullPath := runtime.FuncForPC(reflect.ValueOf(function).Pointer()).Name()
	name := fullPath[strings.LastIndex(fullPath, ".")+1:]

	// method values carry a '-fm' suffix
	name, _, _ = strings.Cut(name, "-")
	return name
}
