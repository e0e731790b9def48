package api

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/preview"
)

const maxFilenameLength = 255

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateTarget checks a (category, filename) pair supplied by a client and
// returns the parsed category. Filenames must be plain PDF names with no
// directory components.
func ValidateTarget(rawCategory, filename string) (category.Category, error) {
	errs := make(map[string]string)

	cat, err := category.Parse(rawCategory)
	if strings.TrimSpace(rawCategory) == "" {
		errs["category"] = "category is required"
	} else if err != nil {
		names := make([]string, 0, len(category.All()))
		for _, c := range category.All() {
			names = append(names, c.String())
		}
		errs["category"] = "category must be one of " + strings.Join(names, ", ")
	}

	switch {
	case filename == "":
		errs["filename"] = "filename is required"
	case len(filename) > maxFilenameLength:
		errs["filename"] = fmt.Sprintf("filename must be at most %d characters", maxFilenameLength)
	case !preview.ValidFilename(filename):
		errs["filename"] = "filename must not contain path separators"
	case !strings.EqualFold(filepath.Ext(filename), ".pdf"):
		errs["filename"] = "only PDF documents are accepted"
	}

	if len(errs) > 0 {
		return 0, &ValidationError{Fields: errs}
	}
	return cat, nil
}
