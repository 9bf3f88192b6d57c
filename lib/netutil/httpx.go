// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP response reads.
//
// Every homeserver response body is read through ReadResponse, so a
// misbehaving server cannot exhaust memory. Media downloads use
// ReadLimited with the caller's own, much smaller, ceiling and report
// an oversize body as an error instead of silently truncating it.
package netutil

import (
	"errors"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON API response reads: 64 MB. Legitimate
// client-server API responses are orders of magnitude smaller.
const MaxResponseSize int64 = 64 << 20

// ErrTooLarge is returned by ReadLimited when the body exceeds the
// limit.
var ErrTooLarge = errors.New("netutil: body exceeds limit")

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// ReadLimited reads at most limit bytes from body. A body longer than
// limit yields ErrTooLarge rather than a truncated result.
func ReadLimited(body io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("netutil: non-positive limit %d", limit)
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	return data, nil
}

// ErrorBody reads an error response body for diagnostics, ignoring
// read failures.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	return string(data)
}
