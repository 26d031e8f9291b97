package provider

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownBackend is returned when a backend name is not registered.
var ErrUnknownBackend = errors.New("unknown backend")

// SystemPrompt frames every backend as a step-by-step math solver.
const SystemPrompt = "You are a math expert. Your task is to solve math problems step-by-step, " +
	"show all work, and clearly state the final answer. Do not include any introductory text. " +
	"Go straight to solving the problem."

// StreamCallback is called for each chunk of streamed content.
type StreamCallback func(chunk string)

// Provider abstracts a text-generation backend.
type Provider interface {
	// Query sends a prompt and returns the complete response.
	Query(ctx context.Context, req Request) (Response, error)
}

// Streamer is implemented by providers that can stream partial output.
// QueryStream invokes callback for each chunk and returns the complete
// response when finished.
type Streamer interface {
	QueryStream(ctx context.Context, req Request, callback StreamCallback) (Response, error)
}

// ModelLister is implemented by providers that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Request contains all inputs for a backend query.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response contains the result of a backend query.
type Response struct {
	Backend  string        `json:"backend"`
	Model    string        `json:"model"`
	Content  string        `json:"content"`
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency_ms"`
}

// ProviderFunc allows functions to implement Provider (adapter pattern).
// Useful for testing and simple inline implementations.
type ProviderFunc func(ctx context.Context, req Request) (Response, error)

func (f ProviderFunc) Query(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Stream queries p, streaming when p supports it. Providers without
// streaming deliver their full content as a single chunk.
func Stream(ctx context.Context, p Provider, req Request, callback StreamCallback) (Response, error) {
	if s, ok := p.(Streamer); ok {
		return s.QueryStream(ctx, req, callback)
	}
	resp, err := p.Query(ctx, req)
	if err != nil {
		return resp, err
	}
	if callback != nil {
		callback(resp.Content)
	}
	return resp, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
