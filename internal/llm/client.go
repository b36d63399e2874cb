package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Client abstracts an OpenAI-compatible LLM API.
type Client interface {
	// ChatCompletion sends a chat completion request and returns the response.
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// ChatCompletionStream sends a streaming chat completion request.
	ChatCompletionStream(ctx context.Context, req ChatRequest) (Stream, error)
}

// ChatRequest is a simplified chat request.
type ChatRequest struct {
	Model         string
	SystemMessage string
	UserMessage   string
	Temperature   *float64
	MaxTokens     int
}

// ChatResponse holds the result of a chat completion.
type ChatResponse struct {
	Content string
	// Thinking holds reasoning output for models that emit it separately.
	Thinking string
}

// Chunk is a single increment of a streamed response. Either field may be
// empty; Thinking carries reasoning deltas for models that expose them.
type Chunk struct {
	Content  string
	Thinking string
}

// Stream yields response chunks in order. Recv returns io.EOF when the
// stream is complete.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// openAIStream adapts an openai.ChatCompletionStream to the Stream interface.
type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (Chunk, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		return Chunk{}, err
	}
	if len(resp.Choices) == 0 {
		return Chunk{}, nil
	}
	delta := resp.Choices[0].Delta
	return Chunk{Content: delta.Content, Thinking: delta.ReasoningContent}, nil
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

// OpenAIClient implements Client using an OpenAI-compatible API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(opts ...Option) *OpenAIClient {
	cfg := &clientConfig{
		baseURL: "https://api.openai.com/v1",
		apiKey:  "not-needed",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	config := openai.DefaultConfig(cfg.apiKey)
	config.BaseURL = cfg.baseURL

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  cfg.model,
	}
}

// ChatCompletion sends a non-streaming chat completion request.
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	msg := resp.Choices[0].Message
	return &ChatResponse{
		Content:  msg.Content,
		Thinking: msg.ReasoningContent,
	}, nil
}

// ChatCompletionStream sends a streaming chat completion request.
func (c *OpenAIClient) ChatCompletionStream(ctx context.Context, req ChatRequest) (Stream, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("chat completion stream failed: %w", err)
	}

	return &openAIStream{stream: stream}, nil
}

func (c *OpenAIClient) buildRequest(req ChatRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}

	var messages []openai.ChatCompletionMessage
	if req.SystemMessage != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: req.SystemMessage,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: req.UserMessage,
	})

	r := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature != nil {
		r.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		r.MaxTokens = req.MaxTokens
	}
	return r
}

// CollectStream reads all chunks from a Stream and returns the accumulated
// content and thinking output.
func CollectStream(s Stream) (content, thinking string, err error) {
	defer s.Close()
	var c, t strings.Builder
	for {
		chunk, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return c.String(), t.String(), err
		}
		c.WriteString(chunk.Content)
		t.WriteString(chunk.Thinking)
	}
	return c.String(), t.String(), nil
}

// IsAPIError reports whether err is a structured error response from the
// remote API (as opposed to a transport-level failure).
func IsAPIError(err error) bool {
	var apiErr *openai.APIError
	return errors.As(err, &apiErr)
}

// IsNetworkError reports whether err originated below the API layer.
func IsNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
