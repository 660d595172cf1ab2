// Package llm wraps chat-model completion behind a small interface and
// extracts JSON payloads from free-form completion text.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrUpstreamCall means the model endpoint could not produce a completion
	ErrUpstreamCall = errors.New("upstream call failed")
	// ErrMalformedResponse means the completion held no parseable JSON
	ErrMalformedResponse = errors.New("malformed response")
)

// Request is a single-turn completion request. Empty Model and nil
// Temperature fall back to the completer's defaults.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature *float32
}

// Completer returns the completion text for a prompt
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Temperature is a helper for Request.Temperature
func Temperature(t float32) *float32 {
	return &t
}
