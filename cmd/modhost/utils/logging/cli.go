// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package logging

import (
	"log/slog"
	"os"

	"github.com/pterm/pterm"
	"golang.org/x/term"
)

type CliPtermHandler struct {
	pterm.SlogHandler
}

type CliTextHandler struct {
	slog.TextHandler
}

// NewCliHandler returns a pterm based handler for interactive terminals and a plain text handler otherwise,
// e.g. when the output is redirected into a file.
func NewCliHandler() HandlerBuilder {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return NewCliPtermHandler()
	}
	return NewCliTextHandler()
}

// NewCliPtermHandler creates a new CLI log handler based on pterm package
func NewCliPtermHandler() HandlerBuilder {
	return func(levelVar *slog.LevelVar) SlogHandler {
		logger := pterm.DefaultLogger.
			WithMaxWidth(pterm.GetTerminalWidth()).
			WithLevel(MapLogLevel(levelVar.Level()))
		handler := pterm.NewSlogHandler(logger)

		return &CliPtermHandler{
			SlogHandler: *handler,
		}
	}
}

func NewCliTextHandler() HandlerBuilder {
	return func(levelVar *slog.LevelVar) SlogHandler {
		options := &slog.HandlerOptions{
			Level: levelVar,
		}
		textHandler := slog.NewTextHandler(os.Stdout, options)

		return &CliTextHandler{
			TextHandler: *textHandler,
		}
	}
}

// MapLogLevel maps slog levels to the closest pterm level not above it.
func MapLogLevel(level slog.Level) pterm.LogLevel {
	switch {
	case level > slog.LevelError:
		return pterm.LogLevelFatal
	case level == slog.LevelError:
		return pterm.LogLevelError
	case level >= slog.LevelWarn:
		return pterm.LogLevelWarn
	case level >= slog.LevelInfo:
		return pterm.LogLevelInfo
	case level >= slog.LevelDebug:
		return pterm.LogLevelDebug
	default:
		return pterm.LogLevelTrace
	}
}

func (h *CliPtermHandler) Flush() {}

func (h *CliPtermHandler) Close() {}

func (h *CliTextHandler) Flush() {}

func (h *CliTextHandler) Close() {}
