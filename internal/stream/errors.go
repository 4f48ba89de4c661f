// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownStrategy indicates a framing strategy name that is not supported.
	ErrUnknownStrategy = errors.New("unknown framing strategy")

	// ErrClosed is returned when the transport yields no body.
	ErrClosed = errors.New("stream closed")
)

// TransportError reports a non-success status from the remote endpoint.
// It is the only failure a stream surfaces to its caller.
type TransportError struct {
	StatusCode int
	Message    string // server-supplied, may be empty
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API request failed with status %d", e.StatusCode)
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// errorEnvelope matches the {"error": {"message": ...}} shape used by
// Google APIs and most OpenAI-compatible servers.
type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// newTransportError builds a TransportError from a status and error body.
func newTransportError(status int, body []byte) *TransportError {
	te := &TransportError{StatusCode: status}

	// Some endpoints wrap the envelope in an array.
	trimmed := strings.TrimSpace(string(body))
	trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")

	var env errorEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err == nil {
		te.Message = strings.TrimSpace(env.Error.Message)
	}
	return te
}
