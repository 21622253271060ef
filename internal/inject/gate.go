// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

// Package inject propagates the engine into processes spawned by a hooked process.
//
// A Gate intercepts the process-wide process creation entry point. For every created child it
// consults a Policy and hands the new process to an Injector, which loads the engine into it.
// The engine copy in the child later installs its own Gate. A Gate never changes the outcome
// of the creation call it observes.
package inject

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// CreateSuspended is the process creation flag starting the main thread suspended.
const CreateSuspended uint32 = 0x00000004

const defaultDrainInterval = 10 * time.Millisecond

// ErrGateActive is returned when a second Gate is created while another one is still installed.
// Only one Gate may exist per process since it hooks a single global entry point.
var ErrGateActive = errors.New("process creation gate already active")

var activeGate atomic.Pointer[Gate]

// ProcessInformation mirrors the process and main thread handles/ids of a created process.
type ProcessInformation struct {
	Process   uintptr
	Thread    uintptr
	ProcessID uint32
	ThreadID  uint32
}

// CreateProcessCall is one invocation of the process creation entry point.
// ApplicationName may be empty, in which case the image is the first token of CommandLine.
type CreateProcessCall struct {
	ApplicationName string
	CommandLine     string
	CreationFlags   uint32
	Info            ProcessInformation

	// Raw holds the untouched entry point arguments for the unhooked implementation.
	Raw []uintptr
}

// CreateProcessFunc creates the process described by call and fills call.Info on success.
type CreateProcessFunc func(call *CreateProcessCall) error

type HookInstaller interface {
	// Original returns the unhooked implementation of the process creation entry point.
	Original() (CreateProcessFunc, error)
	Install(hook CreateProcessFunc) error
	Uninstall() error
}

type InjectOptions struct {
	SessionManagerProcess uintptr
	ThreadAttachExempt    bool
}

// Injector loads the engine into a created, still suspended process.
// It must fail gracefully when the target died in the meantime.
type Injector interface {
	Inject(info ProcessInformation, options InjectOptions) error
	Resume(info ProcessInformation) error
}

type ImageResolver interface {
	ImagePath(call *CreateProcessCall) (string, error)
}

type GateOption func(*Gate)

type Gate struct {
	sessionManagerProcess uintptr
	policy                Policy
	installer             HookInstaller
	injector              Injector
	resolver              ImageResolver
	drainInterval         time.Duration

	original CreateProcessFunc
	inFlight atomic.Int32

	closeMu sync.Mutex
	closed  bool
}

func WithImageResolver(resolver ImageResolver) GateOption {
	return func(g *Gate) {
		g.resolver = resolver
	}
}

func WithDrainInterval(interval time.Duration) GateOption {
	return func(g *Gate) {
		g.drainInterval = interval
	}
}

// NewGate claims the process-wide gate slot and installs the process creation hook.
func NewGate(sessionManagerProcess uintptr, policy Policy, installer HookInstaller, injector Injector, options ...GateOption) (*Gate, error) {
	gate := &Gate{
		sessionManagerProcess: sessionManagerProcess,
		policy:                policy,
		installer:             installer,
		injector:              injector,
		resolver:              NewImageResolver(),
		drainInterval:         defaultDrainInterval,
	}
	for _, option := range options {
		option(gate)
	}

	if !activeGate.CompareAndSwap(nil, gate) {
		return nil, ErrGateActive
	}

	original, err := installer.Original()
	if err != nil {
		activeGate.Store(nil)
		return nil, fmt.Errorf("could not locate process creation entry point: %w", err)
	}
	gate.original = original

	if err := installer.Install(gate.Intercept); err != nil {
		activeGate.Store(nil)
		return nil, fmt.Errorf("could not install process creation hook: %w", err)
	}

	slog.Debug("Process creation gate installed", "policy", policy)

	return gate, nil
}

// Active returns the installed gate, if any.
func Active() *Gate {
	return activeGate.Load()
}

// InFlight returns the number of Intercept calls currently executing.
func (g *Gate) InFlight() int32 {
	return g.inFlight.Load()
}

// Intercept creates the process via the unhooked implementation and propagates the engine into it.
// The returned error is the one of the unhooked implementation; propagation failures are only logged.
func (g *Gate) Intercept(call *CreateProcessCall) error {
	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	callerFlags := call.CreationFlags
	call.CreationFlags |= CreateSuspended

	err := g.original(call)

	call.CreationFlags = callerFlags
	if err != nil {
		return err
	}

	g.handleCreatedProcess(call)

	if callerFlags&CreateSuspended == 0 {
		if err := g.injector.Resume(call.Info); err != nil {
			slog.Error("could not resume created process", "pid", call.Info.ProcessID, "error", err)
		}
	}
	return nil
}

// Close uninstalls the hook, waits until no Intercept call is executing anymore and frees the gate slot.
// A failed uninstall keeps the gate active, so Close may be retried.
func (g *Gate) Close() error {
	g.closeMu.Lock()
	defer g.closeMu.Unlock()

	if g.closed {
		return nil
	}

	if err := g.installer.Uninstall(); err != nil {
		return fmt.Errorf("could not uninstall process creation hook: %w", err)
	}

	for g.inFlight.Load() > 0 {
		time.Sleep(g.drainInterval)
	}

	activeGate.CompareAndSwap(g, nil)
	g.closed = true

	slog.Debug("Process creation gate uninstalled")
	return nil
}

func (g *Gate) handleCreatedProcess(call *CreateProcessCall) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine propagation panicked", "pid", call.Info.ProcessID, "panic", r)
		}
	}()

	imagePath, err := g.resolver.ImagePath(call)
	if err != nil {
		slog.Warn("could not resolve image path of created process", "pid", call.Info.ProcessID, "error", err)
		return
	}

	if g.policy.ShouldSkipNewProcess(imagePath) {
		slog.Debug("Skipping created process", "pid", call.Info.ProcessID, "image", imagePath)
		return
	}

	options := InjectOptions{
		SessionManagerProcess: g.sessionManagerProcess,
		ThreadAttachExempt:    g.policy.ShouldAttachExemptThread(imagePath),
	}

	if err := g.injector.Inject(call.Info, options); err != nil {
		slog.Warn("could not inject engine into created process", "pid", call.Info.ProcessID, "image", imagePath, "error", err)
		return
	}

	slog.Debug("Engine injected into created process", "pid", call.Info.ProcessID, "image", imagePath, "threadAttachExempt", options.ThreadAttachExempt)
}
