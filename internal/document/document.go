// Package document holds the data model shared by extraction, storage and
// ingestion: pages with provenance, ingestion units and their outcomes.
package document

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
)

// SourceKind records which extraction path produced a page.
type SourceKind int

const (
	SourceNative SourceKind = iota + 1
	SourceImage
)

// Tag is the bracketed provenance marker appended to stored text. Existing
// consumers parse these exact strings.
func (k SourceKind) Tag() string {
	switch k {
	case SourceNative:
		return "PDF"
	case SourceImage:
		return "Image"
	default:
		return "Unknown"
	}
}

func (k SourceKind) String() string {
	switch k {
	case SourceNative:
		return "native"
	case SourceImage:
		return "image"
	default:
		return "unknown"
	}
}

func (k SourceKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Verdict is the document-wide classification.
type Verdict int

const (
	VerdictNative Verdict = iota + 1
	VerdictScanned
)

func (v Verdict) String() string {
	switch v {
	case VerdictNative:
		return "native"
	case VerdictScanned:
		return "scanned"
	default:
		return "unclassified"
	}
}

func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// Page is one extracted unit of text. Number is the 1-based physical page;
// several image-path pages may share a Number.
type Page struct {
	Number int        `json:"page_number"`
	Text   string     `json:"text"`
	Source SourceKind `json:"source"`
}

// Stored renders the text as persisted: "{text} [{tag}]".
func (p Page) Stored() string {
	return fmt.Sprintf("%s [%s]", p.Text, p.Source.Tag())
}

// Source is one unit of ingestion work. Filename is the document identity
// within its category; Path is where the bytes are read from and may differ
// (for example a staged upload).
type Source struct {
	Category category.Category
	Filename string
	Path     string
}

func (s Source) Key() string {
	return s.Category.String() + "/" + s.Filename
}

// Outcome is the per-file ingestion result.
type Outcome int

const (
	OutcomeInserted Outcome = iota + 1
	OutcomeAlreadyPresent
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeAlreadyPresent:
		return "already_present"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// Result reports what happened to one Source.
type Result struct {
	Category category.Category `json:"category"`
	Filename string            `json:"filename"`
	Outcome  Outcome           `json:"outcome"`
	Verdict  Verdict           `json:"verdict,omitempty"`
	Pages    int               `json:"pages"`
	Duration time.Duration     `json:"duration_ns"`
	Err      error             `json:"-"`
}

// ErrMessage returns the failure message, or "" when the file did not fail.
func (r Result) ErrMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Image is a raster image embedded in a document page.
type Image struct {
	Page   int
	Name   string
	Format string
	Data   []byte
}
