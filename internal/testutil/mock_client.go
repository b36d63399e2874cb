// Package testutil provides shared test helpers.
package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/promptlab/promptlab/internal/llm"
)

// ScriptedStream replays a fixed chunk sequence. A non-nil Err is returned
// after the chunks instead of io.EOF. ChunkDelay, when set, sleeps between
// chunks to let tests exercise interleaving.
type ScriptedStream struct {
	Chunks     []llm.Chunk
	Err        error
	ChunkDelay time.Duration

	pos    int
	closed bool
}

func (s *ScriptedStream) Recv() (llm.Chunk, error) {
	if s.pos >= len(s.Chunks) {
		if s.Err != nil {
			return llm.Chunk{}, s.Err
		}
		return llm.Chunk{}, io.EOF
	}
	if s.ChunkDelay > 0 {
		time.Sleep(s.ChunkDelay)
	}
	c := s.Chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *ScriptedStream) Close() error {
	s.closed = true
	return nil
}

// ModelScript configures the mock's behavior for one model.
type ModelScript struct {
	// Chunks streamed for this model (ChatCompletionStream).
	Chunks []llm.Chunk
	// Response returned for non-streaming calls (ChatCompletion).
	Response string
	// Err fails the call up front.
	Err error
	// StreamErr fails the stream after all chunks are delivered.
	StreamErr error
	// Delay postpones the call, for completion-order tests.
	Delay time.Duration
}

// MockLLMClient is a configurable mock for llm.Client shared across test
// packages. Scripts are keyed by request model.
type MockLLMClient struct {
	mu sync.Mutex

	// Scripts maps model names to behaviors.
	Scripts map[string]ModelScript

	// DefaultResponse is returned when no script matches.
	DefaultResponse string

	// Calls counts all invocations.
	Calls int

	// Requests records every request for inspection.
	Requests []llm.ChatRequest
}

func (m *MockLLMClient) record(req llm.ChatRequest) ModelScript {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.Requests = append(m.Requests, req)
	return m.Scripts[req.Model]
}

func (m *MockLLMClient) ChatCompletion(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	script := m.record(req)
	if script.Delay > 0 {
		select {
		case <-time.After(script.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if script.Err != nil {
		return nil, script.Err
	}
	if script.Response != "" {
		return &llm.ChatResponse{Content: script.Response}, nil
	}
	if m.DefaultResponse != "" {
		return &llm.ChatResponse{Content: m.DefaultResponse}, nil
	}
	return nil, fmt.Errorf("no script for model %q", req.Model)
}

func (m *MockLLMClient) ChatCompletionStream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	script := m.record(req)
	if script.Delay > 0 {
		select {
		case <-time.After(script.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if script.Err != nil {
		return nil, script.Err
	}
	return &ScriptedStream{Chunks: script.Chunks, Err: script.StreamErr}, nil
}

// LastRequest returns the most recent request, if any.
func (m *MockLLMClient) LastRequest() (llm.ChatRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return llm.ChatRequest{}, false
	}
	return m.Requests[len(m.Requests)-1], true
}
