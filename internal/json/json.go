// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

// Package json reads and persists JSON state files shared between engine copies.
package json

import (
	j "encoding/json"
	"fmt"
	"os"

	mos "github.com/modhost/modhost/internal/os"
)

func MarshalIndent(data any) ([]byte, error) {
	return j.MarshalIndent(data, "", "  ")
}

// FromFile returns the decoded file content. A missing file yields an error matching fs.ErrNotExist.
func FromFile[T any](filePath string) (*T, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("could not read file '%s': %w", filePath, err)
	}

	var v T
	if err := j.Unmarshal(content, &v); err != nil {
		return nil, fmt.Errorf("could not parse file '%s': %w", filePath, err)
	}
	return &v, nil
}

// ToFile writes the indented JSON of data, replacing the file as a whole so readers never see partial content.
func ToFile(filePath string, data any) error {
	content, err := MarshalIndent(data)
	if err != nil {
		return fmt.Errorf("could not serialize '%s': %w", filePath, err)
	}
	return mos.WriteFileReplacing(filePath, content)
}
