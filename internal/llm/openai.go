package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// OpenAI and DeepSeek share the chat completions wire format.

type openaiRequest struct {
	Model         string               `json:"model"`
	Messages      []Message            `json:"messages"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Stream        bool                 `json:"stream,omitempty"`
	StreamOptions *openaiStreamOptions `json:"stream_options,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

type openaiResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage"`
}

type openaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage"`
	Error *wireError   `json:"error"`
}

func (c *Client) buildOpenAIRequest(req Request, stream bool) openaiRequest {
	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, req.Messages...)

	wire := openaiRequest{
		Model:     c.WireModel,
		Messages:  msgs,
		MaxTokens: req.MaxTokens,
		Stream:    stream,
	}
	if stream {
		wire.StreamOptions = &openaiStreamOptions{IncludeUsage: true}
	}
	// reasoning models reject max_tokens
	if strings.HasPrefix(c.WireModel, "o1") || c.WireModel == "deepseek-reasoner" {
		wire.MaxTokens = 0
	}
	return wire
}

func (c *Client) openaiGenerate(ctx context.Context, req Request, stream bool) (*Stream, error) {
	resp, err := c.post(ctx, "/chat/completions", c.buildOpenAIRequest(req, stream), stream)
	if err != nil {
		return nil, err
	}
	if !stream {
		defer resp.Body.Close()
		var wire openaiResponse
		if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
			return nil, fmt.Errorf("%s: decoding response: %w", c.Provider, err)
		}
		var text string
		if len(wire.Choices) > 0 {
			text = wire.Choices[0].Message.Content
		}
		var usage Usage
		if wire.Usage != nil {
			usage = Usage{InputTokens: wire.Usage.PromptTokens, OutputTokens: wire.Usage.CompletionTokens}
		}
		return staticStream(text, usage), nil
	}
	return c.openaiStream(resp.Body), nil
}

func (c *Client) openaiStream(body io.ReadCloser) *Stream {
	scanner := newSSEScanner(body)
	s := newStream(body)
	s.next = func() (string, error) {
		for scanner.Next() {
			data := scanner.Event().Data
			if data == "[DONE]" {
				return "", io.EOF
			}
			var chunk openaiStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return "", fmt.Errorf("%s: decoding stream chunk: %w", c.Provider, err)
			}
			if chunk.Error != nil {
				return "", chunk.Error.toProviderError(0)
			}
			if chunk.Usage != nil {
				s.setInputTokens(chunk.Usage.PromptTokens)
				s.setOutputTokens(chunk.Usage.CompletionTokens)
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				return chunk.Choices[0].Delta.Content, nil
			}
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("%s: reading stream: %w", c.Provider, err)
		}
		return "", io.EOF
	}
	return s
}
