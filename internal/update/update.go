// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

// Package update reports local usage to the update service and merges the returned update metadata.
package update

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type Flags uint32

const (
	// FlagPortable marks installations running from a portable directory.
	FlagPortable Flags = 1 << iota
)

// Status describes the update availability after a merged response.
type Status int

const (
	StatusUnknown Status = iota
	StatusNoUpdates
	StatusUpdatesAvailable
)

const (
	DefaultURL              = "https://update.modhost.dev/versions.json"
	DefaultMaxResponseBytes = 16 << 20

	productName     = "modhost"
	defaultTimeout  = 5 * time.Minute
	jsonContentType = "application/json"
)

var (
	// ErrInvalidHeader is the transport result of an exchange the server answered with a non-success status code.
	ErrInvalidHeader = errors.New("server responded with non-success status")
	ErrAborted       = errors.New("update check aborted")
	// ErrHandleResponse wraps any failure to merge a response body into the local state.
	ErrHandleResponse = errors.New("handling server response failed")
	ErrResponseTooBig = errors.New("response body exceeds limit")
)

// UsageProvider produces the opaque payload reported to the update service.
// An empty payload means there is nothing to report.
type UsageProvider interface {
	UsageSnapshot() ([]byte, error)
}

// Merger applies a response body to the locally persisted update state.
type Merger interface {
	Merge(body []byte) (Status, error)
}

type Options struct {
	URL     string
	Flags   Flags
	Version string
	// Machine is the PE machine code of the OS
	Machine uint16

	Client *http.Client
	Usage  UsageProvider
	Merger Merger

	MaxResponseBytes int64
}

// Result is the outcome of one update check round.
type Result struct {
	// Err is nil on success
	Err          error
	StatusCode   int
	UpdateStatus Status
}

func (s Status) String() string {
	switch s {
	case StatusNoUpdates:
		return "no-updates"
	case StatusUpdatesAvailable:
		return "updates-available"
	default:
		return "unknown"
	}
}

func (r Result) Succeeded() bool {
	return r.Err == nil
}

// UserAgent returns the user agent reported to the update service, e.g. 'modhost/1.5.0 (34404; portable)'.
func UserAgent(version string, machine uint16, flags Flags) string {
	var b strings.Builder
	b.WriteString(productName)
	b.WriteString("/")
	b.WriteString(version)
	b.WriteString(" (")
	b.WriteString(strconv.FormatUint(uint64(machine), 10))
	if flags&FlagPortable != 0 {
		b.WriteString("; portable")
	}
	b.WriteString(")")
	return b.String()
}

func (o Options) withDefaults() Options {
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: defaultTimeout}
	}
	if o.MaxResponseBytes <= 0 {
		o.MaxResponseBytes = DefaultMaxResponseBytes
	}
	return o
}

func (o Options) validate() error {
	if o.Merger == nil {
		return errors.New("no merger given")
	}
	if o.Version == "" {
		return errors.New("no version given")
	}
	return nil
}

func statusError(statusCode int) error {
	return fmt.Errorf("%w: %d %s", ErrInvalidHeader, statusCode, http.StatusText(statusCode))
}
