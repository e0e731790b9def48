// Package extract turns a parsed document into page-level text. A document
// is classified once as a whole, then every page goes through exactly one of
// two paths: the native text layer, or recognition of its embedded images.
package extract

import "github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"

// Document is the parsed view of a source file the extractor works from.
// Pages are 1-based. *pdfdoc.Document satisfies it.
type Document interface {
	NumPages() int
	PageText(page int) (string, error)
	PageImages(page int) []document.Image
}

// Classify reports VerdictScanned if any page of doc carries at least one
// embedded image, and VerdictNative otherwise. The verdict applies to the
// whole document: a single scanned page sends every page down the image
// path and the native text of the other pages is not used.
func Classify(doc Document) document.Verdict {
	for page := 1; page <= doc.NumPages(); page++ {
		if len(doc.PageImages(page)) > 0 {
			return document.VerdictScanned
		}
	}
	return document.VerdictNative
}
