// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

// Package session runs the session manager: it owns the session namespace and checks for updates periodically.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/modhost/modhost/internal/config"
	"github.com/modhost/modhost/internal/host"
	"github.com/modhost/modhost/internal/namespace"
	"github.com/modhost/modhost/internal/profile"
	"github.com/modhost/modhost/internal/update"
	"github.com/modhost/modhost/internal/version"
	"github.com/modhost/modhost/internal/windows/acl"
)

type Manager struct {
	config  *config.Config
	profile *profile.Profile
	client  *http.Client

	pid             uint32
	createNamespace func(pid uint32) (io.Closer, error)
	grantAccess     func(path string) error
}

type Option func(*Manager)

func WithHttpClient(client *http.Client) Option {
	return func(m *Manager) {
		m.client = client
	}
}

// WithNamespaceCreator replaces the OS private namespace, e.g. on systems without private namespaces.
func WithNamespaceCreator(create func(pid uint32) (io.Closer, error)) Option {
	return func(m *Manager) {
		m.createNamespace = create
	}
}

func WithAccessGranter(grant func(path string) error) Option {
	return func(m *Manager) {
		m.grantAccess = grant
	}
}

func NewManager(cfg *config.Config, prof *profile.Profile, options ...Option) *Manager {
	manager := &Manager{
		config:  cfg,
		profile: prof,
		pid:     uint32(os.Getpid()),
		createNamespace: func(pid uint32) (io.Closer, error) {
			ns, err := namespace.Create(pid)
			if err != nil {
				return nil, err
			}
			return ns, nil
		},
		grantAccess: acl.NewOSAcl().GrantWorldFullAccess,
	}
	for _, option := range options {
		option(manager)
	}
	return manager
}

// UpdateOptions returns the update check options derived from config and profile.
func (m *Manager) UpdateOptions() (update.Options, error) {
	maxResponseBytes, err := m.config.Update.MaxResponseBytes()
	if err != nil {
		return update.Options{}, err
	}

	var flags update.Flags
	if m.config.Portable {
		flags |= update.FlagPortable
	}

	return update.Options{
		URL:              m.config.Update.URL,
		Flags:            flags,
		Version:          version.EngineVersion(),
		Machine:          host.NativeMachine(),
		Client:           m.client,
		Usage:            m.profile,
		Merger:           m.profile,
		MaxResponseBytes: maxResponseBytes,
	}, nil
}

// CheckForUpdates runs one blocking update check round.
func (m *Manager) CheckForUpdates(ctx context.Context) (update.Result, error) {
	options, err := m.UpdateOptions()
	if err != nil {
		return update.Result{}, err
	}

	session, err := update.Start(ctx, options, nil)
	if err != nil {
		return update.Result{}, err
	}
	return session.HandleResponse(), nil
}

// Run shares the data dir, creates the session namespace and checks for updates right away and then
// every configured interval until ctx is done. A pending check is aborted on return.
func (m *Manager) Run(ctx context.Context, onResult func(update.Result)) error {
	if err := m.grantAccess(m.config.DataDir); err != nil {
		slog.Warn("Could not share data dir with engine copies", "path", m.config.DataDir, "error", err)
	}

	ns, err := m.createNamespace(m.pid)
	if err != nil {
		return fmt.Errorf("could not create session namespace: %w", err)
	}
	defer func() {
		if err := ns.Close(); err != nil {
			slog.Error("could not close session namespace", "error", err)
		}
	}()

	slog.Info("Session manager running", "pid", m.pid, "namespace", namespace.MakeName(m.pid), "update-interval", m.config.Update.Interval)

	options, err := m.UpdateOptions()
	if err != nil {
		return err
	}

	next := time.NewTimer(0)
	defer next.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session manager stopping")
			return nil
		case <-next.C:
		}

		result, ok := m.runRound(ctx, options)
		if ok && onResult != nil {
			onResult(result)
		}

		if m.config.Update.Interval <= 0 {
			<-ctx.Done()
			slog.Info("Session manager stopping")
			return nil
		}
		next.Reset(m.config.Update.Interval)
	}
}

// runRound returns false when the round was aborted.
func (m *Manager) runRound(ctx context.Context, options update.Options) (update.Result, bool) {
	// a detached context, so that the round is only ever cancelled through Abort
	session, err := update.Start(context.WithoutCancel(ctx), options, func() {})
	if err != nil {
		slog.Error("could not start update check", "error", err)
		return update.Result{}, false
	}

	select {
	case <-session.Done():
	case <-ctx.Done():
		session.Abort()
		session.Wait()
		slog.Debug("Update check aborted")
		return update.Result{}, false
	}

	result := session.HandleResponse()
	if result.Err != nil {
		slog.Warn("Update check failed", "status-code", result.StatusCode, "error", result.Err)
	} else {
		slog.Info("Update check done", "status-code", result.StatusCode, "update-status", result.UpdateStatus)
	}
	return result, true
}
