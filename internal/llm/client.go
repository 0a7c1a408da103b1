// Package llm talks to upstream chat-completion APIs.
//
// A Client is bound to one provider, one upstream model and one credential.
// It performs a single request per call and never retries.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/org/chatgateway/pkg/models"
)

// Default upstream base URLs.
const (
	OpenAIBaseURL    = "https://api.openai.com/v1"
	AnthropicBaseURL = "https://api.anthropic.com/v1"
	DeepSeekBaseURL  = "https://api.deepseek.com/v1"

	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 4096
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic generation request.
type Request struct {
	System    string
	Messages  []Message
	MaxTokens int
}

// Usage is token accounting for one generation.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the provider's default endpoint root.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client used for upstream calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// Client is a ready-to-use handle on one upstream model.
type Client struct {
	Provider  models.Provider
	WireModel string

	credential string
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for provider. It performs no I/O.
func NewClient(provider models.Provider, wireModel, credential string, opts ...Option) (*Client, error) {
	c := &Client{
		Provider:   provider,
		WireModel:  wireModel,
		credential: credential,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	switch provider {
	case models.ProviderOpenAI:
		c.baseURL = OpenAIBaseURL
	case models.ProviderAnthropic:
		c.baseURL = AnthropicBaseURL
	case models.ProviderDeepSeek:
		c.baseURL = DeepSeekBaseURL
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", provider)
	}
	if credential == "" {
		return nil, fmt.Errorf("llm: empty credential for %s", provider)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// String identifies the client without exposing the credential.
func (c *Client) String() string {
	return string(c.Provider) + "/" + c.WireModel
}

// Generate sends req upstream. With stream set the returned Stream yields
// text deltas as they arrive; otherwise it yields the whole reply once.
// Upstream failures are returned as *ProviderError.
func (c *Client) Generate(ctx context.Context, req Request, stream bool) (*Stream, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	switch c.Provider {
	case models.ProviderAnthropic:
		return c.anthropicGenerate(ctx, req, stream)
	default:
		return c.openaiGenerate(ctx, req, stream)
	}
}

// Complete runs a non-streaming generation and returns the full text.
func (c *Client) Complete(ctx context.Context, req Request) (string, Usage, error) {
	s, err := c.Generate(ctx, req, false)
	if err != nil {
		return "", Usage{}, err
	}
	defer s.Close()
	if err := s.Drain(); err != nil {
		return "", Usage{}, err
	}
	return s.Text(), s.Usage(), nil
}

func (c *Client) post(ctx context.Context, path string, wireRequest any, streaming bool) (*http.Response, error) {
	prefix := string(c.Provider)
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: marshaling request: %w", prefix, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if streaming {
		httpRequest.Header.Set("Accept", "text/event-stream")
	}
	switch c.Provider {
	case models.ProviderAnthropic:
		httpRequest.Header.Set("x-api-key", c.credential)
		httpRequest.Header.Set("anthropic-version", anthropicVersion)
	default:
		httpRequest.Header.Set("Authorization", "Bearer "+c.credential)
	}

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", prefix, err)
	}
	if httpResponse.StatusCode != http.StatusOK {
		defer httpResponse.Body.Close()
		return nil, readProviderError(httpResponse)
	}
	return httpResponse, nil
}
