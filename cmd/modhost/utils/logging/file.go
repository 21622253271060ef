// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package logging

import (
	"io"
	"log/slog"
	"os"

	bl "github.com/modhost/modhost/internal/logging"
	"github.com/pterm/pterm"
)

type FileHandler struct {
	slog.JSONHandler
	logFile *os.File
}

const (
	componentAttributeName = "component"
	componentName          = "modhost.exe"
)

// NewFileHandler initializes the log file at the given path and creates an slog handler logging to this file.
// When the file cannot be opened, the handler discards all records.
func NewFileHandler(filePath string) HandlerBuilder {
	return func(levelVar *slog.LevelVar) SlogHandler {
		var writer io.Writer = io.Discard

		logFile, err := bl.InitializeLogFile(filePath)
		if err != nil {
			pterm.Warning.Printfln("Logging to file disabled: %v", err)
		} else {
			writer = logFile
		}

		options := &slog.HandlerOptions{
			Level:       levelVar,
			AddSource:   true,
			ReplaceAttr: bl.ReplaceSourceFilePath,
		}
		componentAttribute := slog.String(componentAttributeName, componentName)
		jsonHandler := slog.NewJSONHandler(writer, options).WithAttrs([]slog.Attr{componentAttribute}).(*slog.JSONHandler)

		return &FileHandler{
			JSONHandler: *jsonHandler,
			logFile:     logFile,
		}
	}
}

// Flush writes pending changes to the log file
func (h *FileHandler) Flush() {
	if h.logFile == nil {
		return
	}

	if err := h.logFile.Sync(); err != nil {
		pterm.Warning.Printfln("Could not flush log file: %v", err)
	}
}

// Close closes the log file and removes the file handle
func (h *FileHandler) Close() {
	if h.logFile == nil {
		return
	}

	if err := h.logFile.Close(); err != nil {
		pterm.Warning.Printfln("Could not close log file: %v", err)
	}

	h.logFile = nil
}
