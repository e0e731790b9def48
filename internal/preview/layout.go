// Package preview renders document pages into PNG previews laid out as
// <root>/<category>/<stem>/<page>.png and looks them up again. Lookups never
// render.
package preview

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/errors"
)

// ValidFilename reports whether name is a plain file name with no directory
// components.
func ValidFilename(name string) bool {
	return name != "" && name != "." && name != ".." &&
		filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}

// Stem is the file name without its extension.
func Stem(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// Dir is the directory holding the previews of one document.
func Dir(root string, c category.Category, filename string) string {
	return filepath.Join(root, c.String(), Stem(filename))
}

// Lookup returns the path of an existing preview. A missing preview, an
// invalid name or a page below 1 yield apperrors.ErrNotFound.
func Lookup(root string, c category.Category, filename string, page int) (string, error) {
	if !c.Valid() || !ValidFilename(filename) || page < 1 {
		return "", apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "no preview for %s/%s page %d", c, filename, page)
	}
	path := filepath.Join(Dir(root, c, filename), strconv.Itoa(page)+".png")
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "no preview for %s/%s page %d", c, filename, page)
	}
	return path, nil
}

func pagePath(dir string, page int) string {
	return filepath.Join(dir, fmt.Sprintf("%d.png", page))
}
