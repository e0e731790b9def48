// Package ocr defines the recognition boundary used by the image extraction
// path. Engines receive one normalized page image at a time.
package ocr

import "context"

// Input is one image to recognise.
type Input struct {
	// ID identifies the image in logs, e.g. "contracts/lease.pdf#p3/Im1".
	ID string
	// Image holds encoded image bytes (PNG after normalization).
	Image  []byte
	Format string
	Page   int
}

// Result is the recognised text of one Input.
type Result struct {
	InputID   string
	PlainText string
}

// Engine performs optical character recognition.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, in Input) (Result, error)

func (f EngineFunc) Name() string { return "func" }

func (f EngineFunc) Recognize(ctx context.Context, in Input) (Result, error) {
	return f(ctx, in)
}
