package llm

import (
	"context"
	"time"
)

// Request is a single model invocation.
type Request struct {
	Model        string        `json:"model"`
	SystemPrompt string        `json:"system_prompt"`
	Input        any           `json:"input"`
	Temperature  float64       `json:"temperature"`
	MaxTokens    int           `json:"max_tokens"`
	Timeout      time.Duration `json:"timeout"`
}

// Response is the generated text of a successful invocation.
type Response struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
}

// Invoker performs the actual model call. Implementations should return
// *types.Error values coded AUTHENTICATION, RATE_LIMITED, TIMEOUT or
// PROVIDER_ERROR; uncoded errors are treated as PROVIDER_ERROR.
type Invoker interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req *Request) (*Response, error)

// Invoke calls f(ctx, req).
func (f InvokerFunc) Invoke(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Closer is implemented by invokers that hold pooled resources.
type Closer interface {
	Close() error
}

// Close releases inv's resources when it implements Closer.
func Close(inv Invoker) error {
	if c, ok := inv.(Closer); ok {
		return c.Close()
	}
	return nil
}
