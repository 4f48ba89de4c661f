// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/npchat/internal/logger"
	"github.com/jeranaias/npchat/internal/model"
	"github.com/jeranaias/npchat/internal/stream"
)

// Configuration constants for the Gemini API.
const (
	// DefaultBaseURL is the Generative Language API host.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultAPIVersion is the API version path segment.
	DefaultAPIVersion = "v1beta"

	// DefaultModel is the model used when none is configured.
	DefaultModel = "gemini-2.5-flash"

	// DefaultTemperature is the sampling temperature.
	DefaultTemperature = 0.7

	// DefaultCandidateCount is the number of candidates requested.
	DefaultCandidateCount = 1

	// DefaultBotName is the assistant's display name.
	DefaultBotName = "NP Chatbot"

	// DefaultWelcome is the scripted first turn shown to the user.
	DefaultWelcome = "Hello! I'm NP Chatbot. How can I assist you today?"

	// DefaultSystemInstruction sets the assistant persona.
	DefaultSystemInstruction = "You are a friendly and helpful chatbot named NP Chatbot. " +
		"Your responses should be informative and conversational.\n" +
		"CRITICAL RULE: ALL code, including single-line snippets, MUST be enclosed in " +
		"markdown code blocks (```). For example:\n" +
		"```javascript\nconsole.log(\"Hello, World!\");\n```\n" +
		"This rule is mandatory. Do not use any other formatting for code."

	apiKeyHeader = "x-goog-api-key"
)

// UserAgent is sent with every request. main sets the version suffix.
var UserAgent = "npchat"

// ErrNotConfigured indicates the API key is not set.
var ErrNotConfigured = errors.New("Gemini API key not configured")

// sharedStreamingClient is used for streaming requests (no timeout, context-controlled).
// PERFORMANCE: Connection pooling for streaming requests.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	// No timeout for streaming - controlled via context
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the Gemini API and creates token streams.
type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger

	// Stream construction
	strategy  stream.Strategy
	tokenPath string
	maxBuffer int
	readSize  int

	// Request body
	systemInstruction string
	temperature       float64
	candidateCount    int
}

// NewClient creates a client with the given API key and default settings.
// If the API key is empty the client is still created, but streams fail
// with ErrNotConfigured.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:            strings.TrimSpace(apiKey),
		baseURL:           DefaultBaseURL,
		apiVersion:        DefaultAPIVersion,
		model:             DefaultModel,
		httpClient:        sharedStreamingClient,
		log:               logger.DefaultLogger,
		strategy:          stream.StrategyLine,
		tokenPath:         stream.DefaultTokenPath,
		maxBuffer:         stream.DefaultMaxBuffer,
		readSize:          stream.DefaultReadSize,
		systemInstruction: DefaultSystemInstruction,
		temperature:       DefaultTemperature,
		candidateCount:    DefaultCandidateCount,
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(u string) *Client {
	if u != "" {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
	return c
}

// WithAPIVersion sets the API version path segment.
func (c *Client) WithAPIVersion(v string) *Client {
	if v != "" {
		c.apiVersion = strings.Trim(v, "/")
	}
	return c
}

// WithModel sets the model to stream from.
func (c *Client) WithModel(m string) *Client {
	if m != "" {
		c.model = m
	}
	return c
}

// WithHTTPClient replaces the shared streaming HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithLogger sets the logger for the client and the streams it creates.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.log = l
	}
	return c
}

// WithStrategy sets the framing strategy, which also selects the wire format.
func (c *Client) WithStrategy(s stream.Strategy) *Client {
	c.strategy = s
	return c
}

// WithTokenPath sets the expression that locates text inside each unit.
func (c *Client) WithTokenPath(path string) *Client {
	if path != "" {
		c.tokenPath = path
	}
	return c
}

// WithBufferLimits sets the framer buffer cap and the transport read size.
// Zero keeps the current value.
func (c *Client) WithBufferLimits(maxBuffer, readSize int) *Client {
	if maxBuffer > 0 {
		c.maxBuffer = maxBuffer
	}
	if readSize > 0 {
		c.readSize = readSize
	}
	return c
}

// WithRateLimit throttles requests to perMinute. Zero disables throttling.
func (c *Client) WithRateLimit(perMinute int) *Client {
	if perMinute <= 0 {
		c.limiter = nil
		return c
	}
	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	return c
}

// WithGeneration sets the system instruction and sampling parameters.
// An empty instruction omits systemInstruction from the request.
func (c *Client) WithGeneration(systemInstruction string, temperature float64, candidateCount int) *Client {
	c.systemInstruction = systemInstruction
	c.temperature = temperature
	if candidateCount > 0 {
		c.candidateCount = candidateCount
	}
	return c
}

// Model returns the configured model.
func (c *Client) Model() string {
	return c.model
}

// Strategy returns the configured framing strategy.
func (c *Client) Strategy() stream.Strategy {
	return c.strategy
}

// IsConfigured returns true if the client has an API key configured.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// APIKeyMasked returns a masked version of the API key for display.
// SECURITY: Never exposes API key fragments - use fingerprint instead.
func (c *Client) APIKeyMasked() string {
	return MaskKey(c.apiKey)
}

// MaskKey describes an API key by length and fingerprint without
// revealing any part of it.
func MaskKey(key string) string {
	if key == "" {
		return "[not set]"
	}
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(key), hex.EncodeToString(h[:4]))
}

// Endpoint returns the streaming URL for the configured model and strategy.
func (c *Client) Endpoint() string {
	u := fmt.Sprintf("%s/%s/models/%s:streamGenerateContent",
		c.baseURL, c.apiVersion, url.PathEscape(c.model))
	if c.strategy == stream.StrategyLine {
		u += "?alt=sse"
	}
	return u
}

// =============================================================================
// STREAM FACTORY
// =============================================================================

// StartStream builds the request for history and returns a new sequencer
// for the reply. Nothing is sent until the first Next; cancel ctx (the
// one passed to Next) to abandon the stream.
func (c *Client) StartStream(ctx context.Context, history []model.Message) (*stream.Sequencer, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(c.BuildRequest(history))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	framer, err := stream.NewFramer(c.strategy,
		stream.WithMaxBuffer(c.maxBuffer),
		stream.WithFramerLogger(c.log))
	if err != nil {
		return nil, err
	}

	c.log.DebugContext(ctx, "stream prepared",
		"model", c.model, "framing", string(c.strategy), "turns", len(history), "bytes", len(payload))

	return stream.NewSequencer(c, framer, payload,
		stream.WithLogger(c.log),
		stream.WithTokenPath(c.tokenPath),
		stream.WithReadSize(c.readSize)), nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// Open implements stream.Transport.
func (c *Client) Open(ctx context.Context, payload []byte) (*stream.Response, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	// Don't log headers (auth) or body (user content).
	c.log.Debug("API request", "method", req.Method, "path", req.URL.Path)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	c.log.Debug("API response", "status", resp.StatusCode, "elapsed", time.Since(start))

	return &stream.Response{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

// setHeaders sets the required headers for streaming requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("User-Agent", UserAgent)
	if c.strategy == stream.StrategyLine {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
}
