package llm

import (
	"context"
	"errors"
)

var (
	// ErrBlocked means the provider refused to answer or returned no content.
	ErrBlocked = errors.New("provider returned no content")
	// ErrMalformedResponse means the answer was not a JSON object.
	ErrMalformedResponse = errors.New("provider response is not a JSON object")
)

// FormData is the application's form record, passed to the provider verbatim.
type FormData map[string]any

// Request asks the provider for values of one batch of placeholder keys.
type Request struct {
	FormData FormData
	Keys     []string
	// Reference is optional grounding material, e.g. a filled-in sample.
	Reference *Reference
}

// Provider defines the interface of a generative text backend. Generate
// returns the raw model text, expected to be a JSON object keyed by Keys.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}
