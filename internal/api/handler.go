package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/preview"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/logger"
)

// Ingester ingests exactly one file.
type Ingester interface {
	IngestFile(ctx context.Context, src document.Source) document.Result
}

// Searcher answers keyword queries and lists the catalog.
type Searcher interface {
	Search(ctx context.Context, keywords string, scope *category.Category) (*query.Result, error)
	Catalog(ctx context.Context) ([]query.CatalogEntry, error)
}

// Renderer produces page previews for a newly stored document.
type Renderer interface {
	Render(ctx context.Context, c category.Category, filename, path string) preview.Rendered
}

// Config holds the handler's filesystem and size limits.
type Config struct {
	CorpusRoot     string
	MaxUploadBytes int64
}

type Handler struct {
	ingester Ingester
	searcher Searcher
	resolver query.Resolver
	cache    *query.Cache
	renderer Renderer
	cfg      Config
	logger   *slog.Logger
}

// New creates a Handler. cache and renderer may be nil.
func New(ingester Ingester, searcher Searcher, resolver query.Resolver, cache *query.Cache, renderer Renderer, cfg Config) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	return &Handler{
		ingester: ingester,
		searcher: searcher,
		resolver: resolver,
		cache:    cache,
		renderer: renderer,
		cfg:      cfg,
		logger:   slog.Default().With("component", "api-handler"),
	}
}

// Upload accepts a multipart form with "category" and "file", ingests the
// file and keeps it in the corpus only when it was inserted.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.cfg.MaxUploadBytes))
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeValidation(w, &ValidationError{Fields: map[string]string{"file": "file is required"}})
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	cat, err := ValidateTarget(r.FormValue("category"), filename)
	if err != nil {
		h.writeValidation(w, err)
		return
	}

	dir := filepath.Join(h.cfg.CorpusRoot, cat.String())
	staged, err := stage(dir, file)
	if err != nil {
		log.Error("staging upload failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	defer os.Remove(staged)

	res := h.ingester.IngestFile(ctx, document.Source{Category: cat, Filename: filename, Path: staged})
	resp := IngestResponse{Result: res, Error: res.ErrMessage()}
	if res.Outcome == document.OutcomeInserted {
		final := filepath.Join(dir, filename)
		if err := os.Rename(staged, final); err != nil {
			log.Error("keeping uploaded file failed", "filename", filename, "error", err)
		} else if h.renderer != nil {
			rendered := h.renderer.Render(ctx, cat, filename, final)
			if rendered.Err != nil {
				log.Warn("preview rendering failed", "filename", filename, "error", rendered.Err)
			}
			resp.Previews = rendered.Pages
		}
	}
	h.writeOutcome(w, resp)
}

func stage(dir string, src io.Reader) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// Ingest ingests a file that is already in the corpus.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cat, err := ValidateTarget(req.Category, req.Filename)
	if err != nil {
		h.writeValidation(w, err)
		return
	}
	ref := h.resolver.Download(cat, req.Filename)
	if !ref.Available {
		h.writeError(w, http.StatusNotFound, query.StatusFileNotFound)
		return
	}
	res := h.ingester.IngestFile(r.Context(), document.Source{Category: cat, Filename: req.Filename, Path: ref.Path})
	h.writeOutcome(w, IngestResponse{Result: res, Error: res.ErrMessage()})
}

func (h *Handler) writeOutcome(w http.ResponseWriter, resp IngestResponse) {
	switch resp.Outcome {
	case document.OutcomeInserted:
		h.writeJSON(w, http.StatusCreated, resp)
	case document.OutcomeAlreadyPresent:
		h.writeJSON(w, http.StatusOK, resp)
	default:
		h.writeJSON(w, apperrors.HTTPStatusCode(resp.Err), resp)
	}
}

// Search runs GET /api/v1/search?q=&category=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var scope *category.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		c, err := category.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		scope = &c
	}
	res, err := h.searcher.Search(ctx, r.URL.Query().Get("q"), scope)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}
	logger.FromContext(ctx).Info("search completed",
		"keywords", res.Keywords,
		"groups", len(res.Groups),
		"matches", res.Matches,
		"cached", res.Cached,
	)
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.searcher.Catalog(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("catalog failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "catalog failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"documents": entries, "total": len(entries)})
}

// Download serves the original file or a 404.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	cat, err := category.Parse(r.PathValue("category"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, query.StatusFileNotFound)
		return
	}
	filename := r.PathValue("filename")
	ref := h.resolver.Download(cat, filename)
	if !ref.Available {
		h.writeError(w, http.StatusNotFound, query.StatusFileNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	h.serveFile(w, r, ref.Path)
}

// Preview serves a rendered page image or a 404. It never renders.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	cat, err := category.Parse(r.PathValue("category"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, query.StatusNotAvailable)
		return
	}
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, query.StatusNotAvailable)
		return
	}
	ref := h.resolver.Preview(cat, r.PathValue("filename"), page)
	if !ref.Available {
		h.writeError(w, http.StatusNotFound, query.StatusNotAvailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	h.serveFile(w, r, ref.Path)
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		h.writeError(w, http.StatusNotFound, query.StatusFileNotFound)
		return
	}
	defer f.Close()
	var modTime time.Time
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}
	http.ServeContent(w, r, filepath.Base(path), modTime, f)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	n, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": n})
}

func (h *Handler) writeValidation(w http.ResponseWriter, err error) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
