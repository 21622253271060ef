// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

// Package engine runs inside every process the engine DLL was injected into. It installs the
// process creation gate, so the engine spreads to the children of the process.
//
// The engine performs no thread-level attachment: it neither hooks per-thread state nor reacts to
// thread creation. The thread-attach-exempt flag handed over by the injector is kept for the mods
// loaded on top of the engine, which must not attach to threads of such processes.
package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/modhost/modhost/internal/config"
	"github.com/modhost/modhost/internal/inject"
	"github.com/modhost/modhost/internal/logging"
	"github.com/modhost/modhost/internal/namespace"
)

const logComponent = "engine"

// Engine is the started engine of the current process.
type Engine struct {
	gate               *inject.Gate
	namespace          io.Closer
	logFile            io.Closer
	threadAttachExempt bool
}

type platform struct {
	loadConfig    func(dir string) (*config.Config, error)
	openLog       func(path string) (io.WriteCloser, error)
	processID     func(process uintptr) (uint32, error)
	openNamespace func(pid uint32) (io.Closer, error)
	newInstaller  func() inject.HookInstaller
	newInjector   func(dllPath string) (inject.Injector, error)
}

type Option func(*platform)

func WithConfigLoader(load func(dir string) (*config.Config, error)) Option {
	return func(p *platform) {
		p.loadConfig = load
	}
}

func WithLogOpener(open func(path string) (io.WriteCloser, error)) Option {
	return func(p *platform) {
		p.openLog = open
	}
}

func WithProcessIDResolver(resolve func(process uintptr) (uint32, error)) Option {
	return func(p *platform) {
		p.processID = resolve
	}
}

func WithNamespaceOpener(open func(pid uint32) (io.Closer, error)) Option {
	return func(p *platform) {
		p.openNamespace = open
	}
}

func WithHookInstaller(newInstaller func() inject.HookInstaller) Option {
	return func(p *platform) {
		p.newInstaller = newInstaller
	}
}

func WithInjector(newInjector func(dllPath string) (inject.Injector, error)) Option {
	return func(p *platform) {
		p.newInjector = newInjector
	}
}

// Start loads the configuration placed next to the engine DLL, joins the session of the session manager
// referenced by args and installs the process creation gate injecting the same DLL into new processes.
func Start(dllPath string, args inject.InitArgs, options ...Option) (*Engine, error) {
	p := &platform{
		loadConfig: config.LoadFromDir,
		openLog: func(path string) (io.WriteCloser, error) {
			logFile, err := logging.InitializeLogFile(path)
			if err != nil {
				return nil, err
			}
			return logFile, nil
		},
		processID: processIDOf,
		openNamespace: func(pid uint32) (io.Closer, error) {
			ns, err := namespace.Open(pid)
			if err != nil {
				return nil, err
			}
			return ns, nil
		},
		newInstaller: func() inject.HookInstaller {
			return inject.NewEntryHookInstaller()
		},
		newInjector: func(dllPath string) (inject.Injector, error) {
			injector, err := inject.NewDLLInjector(dllPath)
			if err != nil {
				return nil, err
			}
			return injector, nil
		},
	}
	for _, option := range options {
		option(p)
	}

	cfg, err := p.loadConfig(filepath.Dir(dllPath))
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	engine := &Engine{threadAttachExempt: args.ThreadAttachExempt()}
	engine.logFile = setupLogging(p, cfg.DataDir)

	slog.Info("Starting engine", "dll", dllPath, "thread-attach-exempt", engine.threadAttachExempt)

	sessionManager := uintptr(args.SessionManagerProcess)
	if sessionManager != 0 {
		pid, err := p.processID(sessionManager)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("could not identify session manager: %w", err), engine.Close())
		}
		ns, err := p.openNamespace(pid)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("could not join session of pid %d: %w", pid, err), engine.Close())
		}
		engine.namespace = ns
		slog.Debug("Joined session", "session-manager-pid", pid)
	}

	injector, err := p.newInjector(dllPath)
	if err != nil {
		return nil, errors.Join(err, engine.Close())
	}

	engine.gate, err = inject.NewGate(sessionManager, cfg.Injection.Policy(), p.newInstaller(), injector)
	if err != nil {
		return nil, errors.Join(err, engine.Close())
	}
	return engine, nil
}

// ThreadAttachExempt reports whether the injector marked this process as exempt from thread attachment.
func (e *Engine) ThreadAttachExempt() bool {
	return e.threadAttachExempt
}

// Close removes the gate first, so no new process receives the engine while the session is left.
func (e *Engine) Close() error {
	var errs []error
	if e.gate != nil {
		if err := e.gate.Close(); err != nil {
			// the hook is still in place and may call into the injector, keep everything else alive
			return err
		}
		e.gate = nil
	}
	if e.namespace != nil {
		errs = append(errs, e.namespace.Close())
		e.namespace = nil
	}
	if e.logFile != nil {
		slog.Info("Engine stopped")
		errs = append(errs, e.logFile.Close())
		e.logFile = nil
	}
	return errors.Join(errs...)
}

// setupLogging routes slog into the shared engine log file. Without log file the process' default logger stays.
func setupLogging(p *platform, dataDir string) io.Closer {
	logFile, err := p.openLog(logging.LogFilePath(dataDir, logComponent))
	if err != nil {
		slog.Warn("engine logs to default logger", "error", err)
		return nil
	}

	handler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		AddSource:   true,
		ReplaceAttr: logging.ReplaceSourceFilePath,
	})
	slog.SetDefault(slog.New(handler).With("component", logComponent, "pid", os.Getpid()))
	return logFile
}
