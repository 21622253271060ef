// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

//go:build windows

// Command engine is built with -buildmode=c-shared into the engine DLL injected into new processes.
package main

import "C"

import (
	"log/slog"
	"sync"
	"unsafe"

	"github.com/modhost/modhost/internal/engine"
	"github.com/modhost/modhost/internal/inject"
)

const (
	initSucceeded uint32 = 0
	initFailed    uint32 = 1
)

var (
	mu      sync.Mutex
	running *engine.Engine
)

// InjectInit is the remote thread entry point started by the injector once the DLL is loaded.
//
//export InjectInit
func InjectInit(parameter unsafe.Pointer) uint32 {
	mu.Lock()
	defer mu.Unlock()

	if running != nil {
		return initSucceeded
	}

	var args inject.InitArgs
	if parameter != nil {
		args = *(*inject.InitArgs)(parameter)
	}

	dllPath, err := engine.ModulePath()
	if err != nil {
		slog.Error("could not determine engine module", "error", err)
		return initFailed
	}

	running, err = engine.Start(dllPath, args)
	if err != nil {
		slog.Error("could not start engine", "error", err)
		return initFailed
	}
	return initSucceeded
}

//export InjectUninit
func InjectUninit() uint32 {
	mu.Lock()
	defer mu.Unlock()

	if running == nil {
		return initSucceeded
	}
	if err := running.Close(); err != nil {
		slog.Error("could not stop engine", "error", err)
		return initFailed
	}
	running = nil
	return initSucceeded
}

func main() {}
