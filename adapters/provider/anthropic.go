// Package provider implements the LLM provider client.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/artpar/lexgate/domain/gateway"
	"github.com/artpar/lexgate/ports"
)

// Defaults for the Anthropic Messages API.
const (
	DefaultBaseURL    = "https://api.anthropic.com"
	DefaultAPIVersion = "2023-06-01"
	DefaultModel      = "claude-3-haiku-20240307"
	messagesPath      = "/v1/messages"
	maxErrorBody      = 64 << 10
	maxResponseBody   = 4 << 20
)

// Config contains configuration for the provider client.
type Config struct {
	BaseURL         string
	APIKey          string
	Model           string
	APIVersion      string
	MaxTokens       int           // Used when a request does not set its own
	StreamTimeout   time.Duration // Bounds an entire streaming call, body included
	CompleteTimeout time.Duration // Bounds a non-streaming call
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// Anthropic calls the Anthropic Messages API. Each call is a single attempt;
// failures are reported to the caller and never retried.
type Anthropic struct {
	client          *http.Client // For non-streaming calls
	streamingClient *http.Client // For streaming calls (no compression)
	endpoint        string
	cfg             Config
}

// New creates a provider client.
func New(cfg Config) (*Anthropic, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("parse base URL: unsupported scheme %q", base.Scheme)
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 60 * time.Second
	}
	if cfg.CompleteTimeout <= 0 {
		cfg.CompleteTimeout = 15 * time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}

	// SSE shouldn't be compressed mid-stream
	streamingTransport := transport.Clone()
	streamingTransport.DisableCompression = true

	return &Anthropic{
		client:          &http.Client{Transport: transport},
		streamingClient: &http.Client{Transport: streamingTransport},
		endpoint:        strings.TrimRight(base.String(), "/") + messagesPath,
		cfg:             cfg,
	}, nil
}

// Configured reports whether an API key is present.
func (a *Anthropic) Configured() bool {
	return a.cfg.APIKey != ""
}

// Model returns the model name sent with every call.
func (a *Anthropic) Model() string {
	return a.cfg.Model
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
	Stream    bool         `json:"stream,omitempty"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (a *Anthropic) newRequest(ctx context.Context, req ports.ProviderRequest, stream bool) (*http.Request, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.cfg.MaxTokens
	}

	body := apiRequest{
		Model:     a.cfg.Model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  make([]apiMessage, len(req.Messages)),
		Stream:    stream,
	}
	for i, m := range req.Messages {
		body.Messages[i] = apiMessage{Role: m.Role, Content: m.Content}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", a.cfg.APIVersion)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}
	return httpReq, nil
}

// Stream starts a streaming call bounded by the stream timeout.
// A non-2xx response is returned with its status and no body; only a failure
// to obtain any response is returned as an error.
func (a *Anthropic) Stream(ctx context.Context, req ports.ProviderRequest) (ports.ProviderStream, error) {
	if !a.Configured() {
		return ports.ProviderStream{}, gateway.ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.StreamTimeout)

	httpReq, err := a.newRequest(ctx, req, true)
	if err != nil {
		cancel()
		return ports.ProviderStream{}, err
	}

	resp, err := a.streamingClient.Do(httpReq)
	if err != nil {
		cancel()
		return ports.ProviderStream{}, fmt.Errorf("execute request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()
		return ports.ProviderStream{
			Status: resp.StatusCode,
			Close:  func() error { return nil },
		}, nil
	}

	return ports.ProviderStream{
		Status: resp.StatusCode,
		Body:   resp.Body,
		Close: func() error {
			defer cancel()
			return resp.Body.Close()
		},
	}, nil
}

// Complete performs a non-streaming call bounded by the complete timeout.
func (a *Anthropic) Complete(ctx context.Context, req ports.ProviderRequest) (ports.Completion, error) {
	if !a.Configured() {
		return ports.Completion{}, gateway.ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.CompleteTimeout)
	defer cancel()

	httpReq, err := a.newRequest(ctx, req, false)
	if err != nil {
		return ports.Completion{}, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return ports.Completion{}, &gateway.ProviderStatusError{Status: resp.StatusCode}
	}

	// A mistyped field still leaves the rest of the body decoded, so the
	// usage the call was billed for is returned alongside the error.
	var out apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&out); err != nil {
		return ports.Completion{
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
		}, fmt.Errorf("decode response: %w", err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return ports.Completion{
		Text:         text.String(),
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}, nil
}

// Ensure interface compliance.
var _ ports.Provider = (*Anthropic)(nil)
