// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package logging

import (
	"log/slog"

	bl "github.com/modhost/modhost/internal/logging"
	slogmulti "github.com/samber/slog-multi"
)

// SlogHandler is a slog handler owning resources, e.g. a log file.
type SlogHandler interface {
	slog.Handler
	Flush()
	Close()
}

// HandlerBuilder creates a handler honoring the shared level.
type HandlerBuilder func(levelVar *slog.LevelVar) SlogHandler

// Slogger fans out to all of its handlers, which share one level.
type Slogger struct {
	Logger   *slog.Logger
	LevelVar *slog.LevelVar
	handlers []SlogHandler
}

func NewSlogger() *Slogger {
	return &Slogger{
		Logger:   slog.Default(),
		LevelVar: new(slog.LevelVar),
	}
}

// SetHandlers flushes and closes the current handlers and replaces them.
func (s *Slogger) SetHandlers(builders ...HandlerBuilder) *Slogger {
	s.Flush()
	s.Close()

	s.handlers = make([]SlogHandler, 0, len(builders))
	handlers := make([]slog.Handler, 0, len(builders))
	for _, build := range builders {
		handler := build(s.LevelVar)
		s.handlers = append(s.handlers, handler)
		handlers = append(handlers, handler)
	}

	s.Logger = slog.New(slogmulti.Fanout(handlers...))
	return s
}

func (s *Slogger) SetGlobally() *Slogger {
	slog.SetDefault(s.Logger)
	return s
}

func (s *Slogger) SetVerbosity(verbosity string) error {
	return bl.SetVerbosity(verbosity, s.LevelVar)
}

func (s *Slogger) Flush() {
	for _, handler := range s.handlers {
		handler.Flush()
	}
}

func (s *Slogger) Close() {
	for _, handler := range s.handlers {
		handler.Close()
	}
}
