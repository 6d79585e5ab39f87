package llm

import "context"

// Image is one inline image part of a vision request.
type Image struct {
	MimeType string
	Data     []byte
}

// Request is a single generation call. Images turn it into a vision call.
type Request struct {
	Model           string
	Prompt          string
	Images          []Image
	Temperature     *float64
	MaxOutputTokens int
	JSON            bool // ask for application/json output
}

// Generator is the LLM collaborator the pipeline depends on. Errors carry
// the provider's free-text message; use Classify to interpret them.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Float is a small helper for optional temperatures.
func Float(v float64) *float64 { return &v }
