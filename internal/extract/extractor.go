package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/deskew"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/ocr"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/tracing"
	_ "golang.org/x/image/tiff"
)

// Normalizer straightens a page image before recognition and returns the
// rotation it applied in degrees.
type Normalizer func(img image.Image) (image.Image, float64)

// Extraction is the text of one document together with the path chosen for
// it.
type Extraction struct {
	Verdict document.Verdict
	Pages   []document.Page
}

// Extractor runs the native or image path over a classified document.
type Extractor struct {
	engine    ocr.Engine
	normalize Normalizer
	skipFails bool
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithNormalizer replaces deskew.Correct as the pre-recognition step.
func WithNormalizer(n Normalizer) Option {
	return func(e *Extractor) { e.normalize = n }
}

// WithFailurePolicy selects what happens when one embedded image cannot be
// decoded or recognised: config.OCRFailureAbort fails the document,
// config.OCRFailureSkip records an empty page and carries on.
func WithFailurePolicy(policy string) Option {
	return func(e *Extractor) { e.skipFails = policy == config.OCRFailureSkip }
}

// WithMetrics records OCR and deskew collectors on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// New creates an Extractor that recognises images with engine. The default
// policy aborts the document on the first image failure.
func New(engine ocr.Engine, opts ...Option) *Extractor {
	e := &Extractor{
		engine:    engine,
		normalize: deskew.Correct,
		logger:    slog.Default().With("component", "extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract classifies doc and extracts its pages. name identifies the
// document in logs and recognition inputs. Errors wrap
// apperrors.ErrDocumentParse when the text layer is unreadable and
// apperrors.ErrExtraction when an image fails under the abort policy.
func (e *Extractor) Extract(ctx context.Context, name string, doc Document) (*Extraction, error) {
	_, span := tracing.StartChild(ctx, "classify")
	verdict := Classify(doc)
	span.SetAttr("verdict", verdict.String())
	span.End(nil)

	ctx, span = tracing.StartChild(ctx, "extract")
	var (
		pages []document.Page
		err   error
	)
	switch verdict {
	case document.VerdictScanned:
		pages, err = e.imagePath(ctx, name, doc)
	default:
		pages, err = e.nativePath(doc)
	}
	span.SetAttr("pages", len(pages))
	span.End(err)
	if err != nil {
		return nil, err
	}
	return &Extraction{Verdict: verdict, Pages: pages}, nil
}

func (e *Extractor) nativePath(doc Document) ([]document.Page, error) {
	n := doc.NumPages()
	pages := make([]document.Page, 0, n)
	for i := 0; i < n; i++ {
		text, err := doc.PageText(i + 1)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDocumentParse, fmt.Errorf("page %d: %w", i+1, err))
		}
		pages = append(pages, document.Page{
			Number: i + 1,
			Text:   strings.TrimSpace(text),
			Source: document.SourceNative,
		})
	}
	return pages, nil
}

func (e *Extractor) imagePath(ctx context.Context, name string, doc Document) ([]document.Page, error) {
	var pages []document.Page
	for page := 1; page <= doc.NumPages(); page++ {
		for _, img := range doc.PageImages(page) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			id := fmt.Sprintf("%s#p%d/%s", name, page, img.Name)
			text, err := e.recognize(ctx, id, img)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				if !e.skipFails {
					e.countImage("failed")
					return nil, apperrors.Wrap(apperrors.ErrExtraction, fmt.Errorf("%s: %w", id, err))
				}
				e.countImage("skipped")
				e.logger.Warn("image skipped after recognition failure", "image", id, "error", err)
				text = ""
			} else {
				e.countImage("ok")
			}
			pages = append(pages, document.Page{
				Number: page,
				Text:   text,
				Source: document.SourceImage,
			})
		}
	}
	return pages, nil
}

func (e *Extractor) recognize(ctx context.Context, id string, img document.Image) (string, error) {
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return "", fmt.Errorf("decoding %s image: %w", img.Format, err)
	}
	straight, angle := e.normalize(decoded)
	if e.metrics != nil {
		e.metrics.DeskewAngle.Observe(math.Abs(angle))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, straight); err != nil {
		return "", fmt.Errorf("encoding normalized image: %w", err)
	}
	res, err := e.engine.Recognize(ctx, ocr.Input{
		ID:     id,
		Image:  buf.Bytes(),
		Format: "png",
		Page:   img.Page,
	})
	if err != nil {
		return "", fmt.Errorf("%s recognition: %w", e.engine.Name(), err)
	}
	return strings.TrimSpace(res.PlainText), nil
}

func (e *Extractor) countImage(status string) {
	if e.metrics != nil {
		e.metrics.OCRImagesTotal.WithLabelValues(status).Inc()
	}
}
