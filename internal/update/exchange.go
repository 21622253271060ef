// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package update

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// exchange is a single HTTP request/response round trip which can be aborted at any time.
type exchange struct {
	method  string
	payload []byte

	ctx    context.Context
	cancel context.CancelFunc

	// written by do, read after do returned
	err        error
	statusCode int
	body       []byte

	abortOnce sync.Once
}

func newExchange(parent context.Context, method string, payload []byte) *exchange {
	ctx, cancel := context.WithCancel(parent)
	return &exchange{
		method:  method,
		payload: payload,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (e *exchange) abort() {
	e.abortOnce.Do(e.cancel)
}

func (e *exchange) do(options Options) {
	defer e.cancel()

	e.statusCode, e.body, e.err = e.send(options)
	if e.err != nil && e.ctx.Err() != nil {
		e.err = fmt.Errorf("%w: %w", ErrAborted, e.err)
	}

	slog.Debug("Update exchange done", "method", e.method, "status", e.statusCode, "error", e.err)
}

func (e *exchange) send(options Options) (int, []byte, error) {
	var body io.Reader
	if len(e.payload) > 0 {
		body = bytes.NewReader(e.payload)
	}

	request, err := http.NewRequestWithContext(e.ctx, e.method, options.URL, body)
	if err != nil {
		return 0, nil, fmt.Errorf("could not create %s request: %w", e.method, err)
	}
	request.Header.Set("User-Agent", UserAgent(options.Version, options.Machine, options.Flags))
	if len(e.payload) > 0 {
		request.Header.Set("Content-Type", jsonContentType)
	}

	response, err := options.Client.Do(request)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		// drain to allow connection reuse
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, options.MaxResponseBytes))
		return response.StatusCode, nil, statusError(response.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(response.Body, options.MaxResponseBytes+1))
	if err != nil {
		return response.StatusCode, nil, fmt.Errorf("could not read response body: %w", err)
	}
	if int64(len(payload)) > options.MaxResponseBytes {
		return response.StatusCode, nil, fmt.Errorf("%w of %d bytes", ErrResponseTooBig, options.MaxResponseBytes)
	}
	return response.StatusCode, payload, nil
}

// rejectedVerb returns true if the server refused the request method, which is the only
// case worth repeating the exchange as a plain GET.
func (e *exchange) rejectedVerb() bool {
	return errors.Is(e.err, ErrInvalidHeader) && e.statusCode == http.StatusMethodNotAllowed
}
