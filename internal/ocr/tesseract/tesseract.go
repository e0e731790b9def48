// Package tesseract implements ocr.Engine with libtesseract through gosseract.
// It needs cgo and the tesseract/leptonica headers at build time.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/ocr"
	"github.com/otiai10/gosseract/v2"
)

// Engine creates a fresh gosseract client per call; clients are not safe for
// concurrent use and ingestion runs many workers.
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string {
	return "tesseract"
}

// Recognize runs tesseract on in.Image. Tesseract cannot be interrupted, so
// ctx is only checked before the call starts.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	if len(in.Image) == 0 {
		return ocr.Result{}, fmt.Errorf("tesseract: empty image for %s", in.ID)
	}
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(in.Image); err != nil {
		return ocr.Result{}, fmt.Errorf("tesseract: set image %s: %w", in.ID, err)
	}
	text, err := client.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("tesseract: recognize %s: %w", in.ID, err)
	}
	return ocr.Result{InputID: in.ID, PlainText: strings.TrimSpace(text)}, nil
}
