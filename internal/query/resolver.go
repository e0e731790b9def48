package query

import (
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/preview"
)

// Statuses reported for references that cannot be resolved.
const (
	StatusFileNotFound = "file not found"
	StatusNotAvailable = "not available"
)

// Reference points at evidence for a result: the source file or a rendered
// page. When Available is false, Status says why.
type Reference struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Resolver locates downloadable files and rendered page previews.
type Resolver interface {
	Download(c category.Category, filename string) Reference
	Preview(c category.Category, filename string, page int) Reference
}

// FSResolver resolves references against the corpus and preview trees on
// the local filesystem.
type FSResolver struct {
	CorpusRoot  string
	PreviewRoot string
}

func (r FSResolver) Download(c category.Category, filename string) Reference {
	if !c.Valid() || !preview.ValidFilename(filename) {
		return Reference{Status: StatusFileNotFound}
	}
	path := filepath.Join(r.CorpusRoot, c.String(), filename)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Reference{Status: StatusFileNotFound}
	}
	return Reference{Available: true, Path: path}
}

func (r FSResolver) Preview(c category.Category, filename string, page int) Reference {
	path, err := preview.Lookup(r.PreviewRoot, c, filename, page)
	if err != nil {
		return Reference{Status: StatusNotAvailable}
	}
	return Reference{Available: true, Path: path}
}
