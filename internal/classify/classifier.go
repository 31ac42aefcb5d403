package classify

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable indicates the inference service or model cannot be
	// reached.
	ErrUnavailable = errors.New("inference service unavailable")
	// ErrTimeout indicates the inference call exceeded its deadline.
	ErrTimeout = errors.New("inference request timed out")
)

// DefaultPrompt is used when the caller does not supply one.
const DefaultPrompt = "What object is in this image? Provide a brief, descriptive answer."

// Result is a single classification outcome.
type Result struct {
	Classification string
	Model          string
	Prompt         string
	ProcessingTime time.Duration
}

// Status reports inference backend health.
type Status struct {
	ServiceAvailable bool
	ModelAvailable   bool
	Model            string
	URL              string
}

// Classifier sends images to an external inference backend.
type Classifier interface {
	Classify(ctx context.Context, imageBase64, prompt string) (*Result, error)
	Status(ctx context.Context) *Status
}
