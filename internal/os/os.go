// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package os

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	bos "os"
	"path/filepath"
)

func CreateDirIfNotExisting(path string) error {
	if PathExists(path) {
		return nil
	}
	slog.Debug("Dir not existing, creating it", "path", path)

	if err := bos.MkdirAll(path, bos.ModePerm); err != nil {
		return fmt.Errorf("could not create directory '%s': %w", path, err)
	}
	return nil
}

func ExecutableDir() (string, error) {
	exePath, err := bos.Executable()
	if err != nil {
		return "", fmt.Errorf("could not determine executable: %w", err)
	}
	return filepath.Dir(exePath), nil
}

func PathExists(path string) bool {
	_, err := bos.Stat(path)
	if err == nil {
		slog.Debug("Path exists", "path", path)
		return true
	}

	if !errors.Is(err, fs.ErrNotExist) {
		slog.Error("could not check existence of path", "path", path, "error", err)
	}
	return false
}

// WriteFileReplacing writes data to a temp file next to path and renames it over path,
// so concurrent readers never observe a partially written file.
func WriteFileReplacing(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := CreateDirIfNotExisting(dir); err != nil {
		return err
	}

	tmp, err := bos.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temp file for '%s': %w", path, err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		removeQuietly(tmpPath)
		return fmt.Errorf("could not write temp file '%s': %w", tmpPath, err)
	}

	if err := bos.Rename(tmpPath, path); err != nil {
		removeQuietly(tmpPath)
		return fmt.Errorf("could not replace '%s': %w", path, err)
	}
	return nil
}

func removeQuietly(path string) {
	if err := bos.Remove(path); err != nil {
		slog.Warn("could not remove temp file", "path", path, "error", err)
	}
}
