package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrEmptyPrompt is returned when a request carries no prompt.
var ErrEmptyPrompt = errors.New("empty prompt")

// Request is a single-turn completion request.
type Request struct {
	Instructions string `json:"instructions,omitempty"` // system prompt
	Prompt       string `json:"prompt"`
	MaxTokens    int64  `json:"max_tokens,omitempty"` // zero uses the adapter default
}

// Validate checks the request before it is sent to a provider.
func (r Request) Validate() error {
	if r.Prompt == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the final completion.
type Response struct {
	ID           string      `json:"id"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Model produces completions.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Info() Info
}

// MockModel is an in-memory Model for tests and examples.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	requests  []Request
}

// NewMockModel creates a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion for prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if err := req.Validate(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	text, ok := m.responses[req.Prompt]
	m.mu.Unlock()

	if !ok {
		text = fmt.Sprintf("Mock response to: %s", req.Prompt)
	}

	return Response{
		ID:           "mock",
		Text:         text,
		FinishReason: "stop",
		Usage:        &TokenUsage{PromptTokens: len(req.Prompt), CompletionTokens: len(text), TotalTokens: len(req.Prompt) + len(text)},
	}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
