// Package llm provides the structured-generation client used by every
// pipeline stage. The model is an opaque collaborator: given a prompt
// pair it returns free text or a JSON-shaped value.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrGeneration indicates a transport-level generation failure.
var ErrGeneration = errors.New("generation failed")

// MalformedOutputError is returned by GenerateStructured when the model
// output does not parse into the expected shape.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed model output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// Options control a single generation call.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client is the structured-generation interface.
type Client interface {
	// Generate returns the model's free-text completion for the prompt
	// pair. Fails with an error wrapping ErrGeneration on transport
	// failure.
	Generate(ctx context.Context, system, user string, opts Options) (string, error)

	// GenerateStructured generates a completion and decodes it as JSON
	// into out. Fails with *MalformedOutputError when the output does
	// not parse into the expected shape.
	GenerateStructured(ctx context.Context, system, user string, opts Options, out any) error
}
