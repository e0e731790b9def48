// Package pdfdoc parses PDF files into the page text layers and embedded
// raster images the extraction paths work from. Text comes from
// ledongthuc/pdf; embedded images are pulled out with pdfcpu.
package pdfdoc

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/errors"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// Document is a parsed PDF held in memory.
type Document struct {
	name   string
	texts  []string
	images map[int][]document.Image
}

// Open parses path. Any failure to read the file, its text layer or its
// image resources is reported as apperrors.ErrDocumentParse.
func Open(path string) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = apperrors.Wrap(apperrors.ErrDocumentParse, fmt.Errorf("%s: parser panic: %v", filepath.Base(path), r))
		}
	}()

	texts, err := readText(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDocumentParse, fmt.Errorf("%s: %w", filepath.Base(path), err))
	}
	images, err := readImages(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDocumentParse, fmt.Errorf("%s: extracting images: %w", filepath.Base(path), err))
	}
	return &Document{name: filepath.Base(path), texts: texts, images: images}, nil
}

func readText(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n := r.NumPage()
	if n <= 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	texts := make([]string, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("reading text of page %d: %w", i, err)
		}
		texts[i-1] = text
	}
	return texts, nil
}

func readImages(path string) (map[int][]document.Image, error) {
	disableConfigDir.Do(api.DisableConfigDir)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	images := make(map[int][]document.Image)
	err = api.ExtractImages(f, nil, func(img model.Image, _ bool, _ int) error {
		data, err := io.ReadAll(img)
		if err != nil {
			return fmt.Errorf("reading image %s on page %d: %w", img.Name, img.PageNr, err)
		}
		images[img.PageNr] = append(images[img.PageNr], document.Image{
			Page:   img.PageNr,
			Name:   img.Name,
			Format: strings.ToLower(img.FileType),
			Data:   data,
		})
		return nil
	}, conf)
	if err != nil {
		return nil, err
	}
	for page := range images {
		slices.SortStableFunc(images[page], func(a, b document.Image) int {
			return strings.Compare(a.Name, b.Name)
		})
	}
	return images, nil
}

func (d *Document) Name() string { return d.name }

func (d *Document) NumPages() int { return len(d.texts) }

// PageText returns the raw text layer of a 1-based page.
func (d *Document) PageText(page int) (string, error) {
	if page < 1 || page > len(d.texts) {
		return "", fmt.Errorf("page %d out of range 1..%d", page, len(d.texts))
	}
	return d.texts[page-1], nil
}

// PageImages returns the embedded images of a 1-based page in resource-name
// order.
func (d *Document) PageImages(page int) []document.Image {
	return d.images[page]
}
