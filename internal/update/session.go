// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package update

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/fallback"
)

// Session is one round of reporting usage and fetching update metadata.
//
// The primary request is a POST carrying the usage snapshot, or a GET when there is nothing to report.
// Servers rejecting the POST with 405 are asked again with a single plain GET.
type Session struct {
	options Options
	onDone  func()

	primary *exchange

	// guards fallback, which is created on the exchange goroutine while Abort may run on any other
	fallbackMu sync.Mutex
	fallback   *exchange

	aborted atomic.Bool
	done    chan struct{}
}

// Start begins an update check round.
//
// When onDone is given, Start returns immediately and onDone is called exactly once after the
// primary request and any fallback request completed. Otherwise Start blocks until then.
func Start(ctx context.Context, options Options, onDone func()) (*Session, error) {
	options = options.withDefaults()
	if err := options.validate(); err != nil {
		return nil, fmt.Errorf("invalid update check options: %w", err)
	}

	payload, err := usageSnapshot(options.Usage)
	if err != nil {
		return nil, fmt.Errorf("could not collect usage snapshot: %w", err)
	}

	method := http.MethodGet
	if len(payload) > 0 {
		method = http.MethodPost
	}

	session := &Session{
		options: options,
		onDone:  onDone,
		primary: newExchange(ctx, method, payload),
		done:    make(chan struct{}),
	}

	slog.Debug("Starting update check", "url", options.URL, "method", method, "payload-size", len(payload), "async", onDone != nil)

	if onDone == nil {
		session.run(ctx)
		return session, nil
	}

	go session.run(ctx)

	return session, nil
}

// Abort cancels the primary and the fallback request. It is safe to call at any time and more than once.
func (s *Session) Abort() {
	if s.aborted.Swap(true) {
		return
	}

	s.primary.abort()

	s.fallbackMu.Lock()
	defer s.fallbackMu.Unlock()

	if s.fallback != nil {
		s.fallback.abort()
	}
}

func (s *Session) Aborted() bool {
	return s.aborted.Load()
}

// Wait blocks until the round completed.
func (s *Session) Wait() {
	<-s.done
}

// Done is closed when the round completed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// HandleResponse evaluates the completed round and must not be called before the round is done. The fallback exchange takes precedence over the primary one.
// Only a successful exchange's body is merged; merge failures are reported as ErrHandleResponse.
func (s *Session) HandleResponse() (result Result) {
	completed := s.completedExchange()

	result.Err = completed.err
	result.StatusCode = completed.statusCode
	if result.Err != nil {
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Handling server response failed", "panic", r)
			result.Err = fmt.Errorf("%w: %v", ErrHandleResponse, r)
			result.UpdateStatus = StatusUnknown
		}
	}()

	status, err := s.options.Merger.Merge(completed.body)
	if err != nil {
		slog.Error("Handling server response failed", "error", err)
		result.Err = fmt.Errorf("%w: %w", ErrHandleResponse, err)
		return result
	}
	result.UpdateStatus = status
	return result
}

func (s *Session) completedExchange() *exchange {
	s.fallbackMu.Lock()
	defer s.fallbackMu.Unlock()

	if s.fallback != nil {
		return s.fallback
	}
	return s.primary
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	if s.onDone != nil {
		defer s.onDone()
	}

	retryWithGet := fallback.BuilderWithFunc(func(failsafe.Execution[*exchange]) (*exchange, error) {
		return s.sendFallback(ctx), nil
	}).
		HandleIf(func(completed *exchange, _ error) bool {
			return completed != nil && completed.rejectedVerb()
		}).
		Build()

	_, err := failsafe.Get(func() (*exchange, error) {
		s.primary.do(s.options)
		return s.primary, nil
	}, retryWithGet)
	if err != nil {
		slog.Error("Update check execution failed", "error", err)
	}
}

// sendFallback repeats the round as GET without body unless the session was aborted meanwhile.
func (s *Session) sendFallback(ctx context.Context) *exchange {
	s.fallbackMu.Lock()
	if s.aborted.Load() {
		s.primary.err = fmt.Errorf("%w: %w", ErrAborted, s.primary.err)
		s.fallbackMu.Unlock()
		slog.Debug("Skipping GET fallback of aborted update check")
		return s.primary
	}
	get := newExchange(ctx, http.MethodGet, nil)
	s.fallback = get
	s.fallbackMu.Unlock()

	slog.Debug("Server rejected request method, retrying with GET", "status", s.primary.statusCode)

	get.do(s.options)
	return get
}

func usageSnapshot(usage UsageProvider) ([]byte, error) {
	if usage == nil {
		return nil, nil
	}
	return usage.UsageSnapshot()
}
