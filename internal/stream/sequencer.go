// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/jmespath/go-jmespath"

	"github.com/jeranaias/npchat/internal/logger"
)

// =============================================================================
// TRANSPORT
// =============================================================================

// Response is an opened streaming response.
type Response struct {
	StatusCode int
	Body       io.ReadCloser
}

// Transport opens a streaming request. Implementations must honour ctx:
// cancelling it unblocks any pending Body read.
type Transport interface {
	Open(ctx context.Context, payload []byte) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, payload []byte) (*Response, error)

// Open implements Transport.
func (f TransportFunc) Open(ctx context.Context, payload []byte) (*Response, error) {
	return f(ctx, payload)
}

// =============================================================================
// SEQUENCER
// =============================================================================

const (
	// DefaultTokenPath locates the incremental text inside one unit.
	DefaultTokenPath = "candidates[0].content.parts[0].text"

	// DefaultReadSize is the buffer size for one transport read.
	DefaultReadSize = 32 * 1024

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 8 * 1024
)

// ValidateTokenPath reports whether path is a valid token path expression.
func ValidateTokenPath(path string) error {
	if _, err := jmespath.Compile(path); err != nil {
		return fmt.Errorf("invalid token path %q: %w", path, err)
	}
	return nil
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTokenPath overrides the JMESPath expression used to find the text
// of each unit. An invalid expression keeps DefaultTokenPath.
func WithTokenPath(path string) Option {
	return func(s *Sequencer) {
		if path == "" {
			return
		}
		expr, err := jmespath.Compile(path)
		if err != nil {
			s.log.Error("invalid token path, using default", "path", path, "error", err)
			return
		}
		s.path = expr
	}
}

// WithReadSize sets the size of one transport read.
func WithReadSize(n int) Option {
	return func(s *Sequencer) {
		if n > 0 {
			s.readSize = n
		}
	}
}

// Sequencer turns one streamed response into an ordered, lazy sequence of
// text tokens. It owns its framer, decoder and the response body for the
// lifetime of one stream and cannot be restarted.
//
// A Sequencer is driven by a single consumer and is not safe for
// concurrent use. Cancel the context passed to Next to stop it from
// another goroutine.
type Sequencer struct {
	transport Transport
	framer    Framer
	payload   []byte
	decoder   *ChunkDecoder
	path      *jmespath.JMESPath
	log       *slog.Logger
	readSize  int

	body    io.ReadCloser
	readBuf []byte
	opened  bool
	pending []string

	drained  bool  // transport has nothing more to give
	drainErr error // read failure to report once pending units are consumed

	done     bool
	err      error
	released bool
	closeErr error

	stats Stats
}

// NewSequencer creates a sequencer that will send payload through t and
// frame the response with f. Nothing happens until the first Next.
func NewSequencer(t Transport, f Framer, payload []byte, opts ...Option) *Sequencer {
	s := &Sequencer{
		transport: t,
		framer:    f,
		payload:   payload,
		decoder:   NewChunkDecoder(),
		path:      jmespath.MustCompile(DefaultTokenPath),
		log:       logger.DefaultLogger,
		readSize:  DefaultReadSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the next token. It returns io.EOF once the stream has
// ended, whether it completed or was cancelled; use Outcome to tell the
// two apart. Any other error means the stream failed. After termination
// every call returns the same result.
//
// Next suspends only while waiting for the transport.
func (s *Sequencer) Next(ctx context.Context) (string, error) {
	for {
		if s.done {
			return "", s.terminal()
		}

		if ctx.Err() != nil {
			s.finish(OutcomeCancelled, nil)
			continue
		}

		if !s.opened {
			s.open(ctx)
			continue
		}

		if len(s.pending) > 0 {
			unit := s.pending[0]
			s.pending = s.pending[1:]
			if token, ok := s.extract(unit); ok {
				s.recordToken()
				return token, nil
			}
			continue
		}

		if s.drained {
			if s.drainErr != nil {
				s.finish(OutcomeFailed, s.drainErr)
			} else {
				s.finish(OutcomeCompleted, nil)
			}
			continue
		}

		s.pull(ctx)
	}
}

// Tokens returns the stream as a range-over-func sequence. Each element
// is a token with a nil error; a failure is delivered once as ("", err).
// Cancellation and completion simply end the range. The sequencer is
// closed when the range ends, including on early break.
func (s *Sequencer) Tokens(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer s.Close()
		for {
			token, err := s.Next(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield("", err)
				}
				return
			}
			if !yield(token, nil) {
				return
			}
		}
	}
}

// Close releases the response body. Closing a running stream ends it as
// cancelled. Close is idempotent.
func (s *Sequencer) Close() error {
	if !s.done {
		s.finish(OutcomeCancelled, nil)
	}
	return s.closeErr
}

// Outcome reports how the stream ended, or OutcomePending while it runs.
func (s *Sequencer) Outcome() Outcome {
	return s.stats.Outcome
}

// Err returns the failure that ended the stream, if any.
func (s *Sequencer) Err() error {
	return s.err
}

// Stats returns a snapshot of the stream counters.
func (s *Sequencer) Stats() Stats {
	return s.stats
}

// =============================================================================
// STREAM STEPS
// =============================================================================

// open sends the request and validates the response status.
func (s *Sequencer) open(ctx context.Context) {
	s.opened = true
	s.stats.StartTime = time.Now()

	resp, err := s.transport.Open(ctx, s.payload)
	if err != nil {
		if ctx.Err() != nil {
			s.finish(OutcomeCancelled, nil)
			return
		}
		var te *TransportError
		if errors.As(err, &te) {
			s.finish(OutcomeFailed, te)
			return
		}
		s.finish(OutcomeFailed, fmt.Errorf("open stream: %w", err))
		return
	}
	if resp == nil || resp.Body == nil {
		s.finish(OutcomeFailed, ErrClosed)
		return
	}

	s.body = resp.Body
	s.stats.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if ctx.Err() != nil {
			s.finish(OutcomeCancelled, nil)
			return
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		te := newTransportError(resp.StatusCode, body)
		s.log.Error("stream request failed", "status", te.StatusCode, "message", te.Message)
		s.finish(OutcomeFailed, te)
		return
	}

	s.readBuf = make([]byte, s.readSize)
}

// pull reads one raw chunk and frames it.
func (s *Sequencer) pull(ctx context.Context) {
	n, err := s.body.Read(s.readBuf)
	if n > 0 {
		s.stats.Chunks++
		s.stats.Bytes += n
		s.feed(s.decoder.Decode(s.readBuf[:n]))
	}

	if err == nil {
		return
	}

	if errors.Is(err, io.EOF) {
		s.feed(s.decoder.Flush())
		if rest := s.framer.Remainder(); strings.TrimSpace(rest) != "" {
			s.log.Debug("discarding unterminated data at end of stream",
				"bytes", len(rest), "data", preview(rest))
		}
		s.drained = true
		return
	}

	// A read aborted by cancellation is picked up at the top of Next.
	if ctx.Err() != nil {
		return
	}
	s.drained = true
	s.drainErr = fmt.Errorf("read stream: %w", err)
}

func (s *Sequencer) feed(text string) {
	if text == "" {
		return
	}
	s.pending = append(s.pending, s.framer.Feed(text)...)
}

// extract parses one unit and returns its token, if any.
func (s *Sequencer) extract(unit string) (string, bool) {
	s.stats.Units++

	var doc any
	if err := json.Unmarshal([]byte(unit), &doc); err != nil {
		s.stats.Malformed++
		s.log.Warn("skipping malformed stream unit", "error", err, "unit", preview(unit))
		return "", false
	}

	v, err := s.path.Search(doc)
	if err != nil {
		s.stats.Empty++
		s.log.Debug("token path search failed", "error", err)
		return "", false
	}
	token, ok := v.(string)
	if !ok || token == "" {
		s.stats.Empty++
		s.log.Debug("stream unit carries no text", "unit", preview(unit))
		return "", false
	}
	return token, true
}

func (s *Sequencer) recordToken() {
	if s.stats.Tokens == 0 {
		s.stats.FirstTokenTime = time.Since(s.stats.StartTime)
	}
	s.stats.Tokens++
}

// finish terminates the stream and releases the body.
func (s *Sequencer) finish(outcome Outcome, err error) {
	if s.done {
		return
	}
	s.done = true
	s.err = err
	s.pending = nil
	s.stats.Outcome = outcome
	if !s.stats.StartTime.IsZero() {
		s.stats.Duration = time.Since(s.stats.StartTime)
	}

	if !s.released {
		s.released = true
		if s.body != nil {
			s.closeErr = s.body.Close()
		}
	}

	s.log.Debug("stream finished",
		"outcome", outcome.String(),
		"tokens", s.stats.Tokens,
		"units", s.stats.Units,
		"malformed", s.stats.Malformed)
}

func (s *Sequencer) terminal() error {
	if s.err != nil {
		return s.err
	}
	return io.EOF
}
