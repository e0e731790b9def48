// Package api exposes ingestion, search, download and preview over HTTP.
package api

import "github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"

// IngestRequest is the JSON body of POST /api/v1/ingest. It names a file that
// is already in the corpus.
type IngestRequest struct {
	Category string `json:"category"`
	Filename string `json:"filename"`
}

// IngestResponse reports the outcome of one ingestion.
type IngestResponse struct {
	document.Result
	Error    string `json:"error,omitempty"`
	Previews int    `json:"previews,omitempty"`
}
