package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage anthropicUsage `json:"usage"`
}

type anthropicMessageStart struct {
	Usage anthropicUsage `json:"usage"`
}

type anthropicDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicEvent covers the fields used from every streaming event type.
type anthropicEvent struct {
	Type    string                 `json:"type"`
	Message *anthropicMessageStart `json:"message"`
	Delta   *anthropicDelta        `json:"delta"`
	Usage   *anthropicUsage        `json:"usage"`
	Error   *wireError             `json:"error"`
}

func (c *Client) buildAnthropicRequest(req Request, stream bool) anthropicRequest {
	msgs := make([]Message, 0, len(req.Messages))
	system := req.System
	for _, m := range req.Messages {
		// the messages API takes the system prompt out of band
		if m.Role == "system" {
			if system == "" {
				system = m.Content
			}
			continue
		}
		msgs = append(msgs, m)
	}
	return anthropicRequest{
		Model:     c.WireModel,
		MaxTokens: req.MaxTokens,
		System:    system,
		Messages:  msgs,
		Stream:    stream,
	}
}

func (c *Client) anthropicGenerate(ctx context.Context, req Request, stream bool) (*Stream, error) {
	resp, err := c.post(ctx, "/messages", c.buildAnthropicRequest(req, stream), stream)
	if err != nil {
		return nil, err
	}
	if !stream {
		defer resp.Body.Close()
		var wire anthropicResponse
		if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
			return nil, fmt.Errorf("anthropic: decoding response: %w", err)
		}
		var text string
		for _, block := range wire.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		return staticStream(text, Usage{InputTokens: wire.Usage.InputTokens, OutputTokens: wire.Usage.OutputTokens}), nil
	}
	return c.anthropicStream(resp.Body), nil
}

func (c *Client) anthropicStream(body io.ReadCloser) *Stream {
	scanner := newSSEScanner(body)
	s := newStream(body)
	s.next = func() (string, error) {
		for scanner.Next() {
			var ev anthropicEvent
			if err := json.Unmarshal([]byte(scanner.Event().Data), &ev); err != nil {
				return "", fmt.Errorf("anthropic: decoding stream event: %w", err)
			}
			switch ev.Type {
			case "message_start":
				if ev.Message != nil {
					s.setInputTokens(ev.Message.Usage.InputTokens)
					s.setOutputTokens(ev.Message.Usage.OutputTokens)
				}
			case "content_block_delta":
				if ev.Delta != nil && ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
					return ev.Delta.Text, nil
				}
			case "message_delta":
				if ev.Usage != nil {
					s.setOutputTokens(ev.Usage.OutputTokens)
				}
			case "message_stop":
				return "", io.EOF
			case "error":
				if ev.Error != nil {
					return "", ev.Error.toProviderError(0)
				}
				return "", &ProviderError{Message: "unknown stream error"}
			}
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("anthropic: reading stream: %w", err)
		}
		return "", io.EOF
	}
	return s
}
