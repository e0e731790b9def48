package api

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/middleware"
)

// RouterConfig holds the request-level limits applied by NewRouter.
type RouterConfig struct {
	Timeout       time.Duration
	CORSOrigins   []string
	UploadLimiter *middleware.Limiter
}

// NewRouter wires every route and the middleware chain.
//
// Route table:
//
//	POST /api/v1/documents                                       upload and ingest
//	POST /api/v1/ingest                                          ingest a corpus file
//	GET  /api/v1/search                                          keyword search
//	GET  /api/v1/catalog                                         first-page catalog
//	GET  /api/v1/documents/{category}/{filename}                 download
//	GET  /api/v1/documents/{category}/{filename}/pages/{page}/preview
//	GET  /api/v1/cache/stats
//	POST /api/v1/cache/invalidate
//	GET  /health/live, /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → Timeout → handler
//
// Uploads are additionally rate limited per client address.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/v1/documents", middleware.RateLimit(cfg.UploadLimiter)(http.HandlerFunc(h.Upload)))
	mux.HandleFunc("POST /api/v1/ingest", h.Ingest)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/catalog", h.Catalog)
	mux.HandleFunc("GET /api/v1/documents/{category}/{filename}", h.Download)
	mux.HandleFunc("GET /api/v1/documents/{category}/{filename}/pages/{page}/preview", h.Preview)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	if checker != nil {
		mux.HandleFunc("GET /health/live", checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	}

	var chain http.Handler = mux
	if cfg.Timeout > 0 {
		chain = middleware.Timeout(cfg.Timeout)(chain)
	}
	if m != nil {
		chain = middleware.Metrics(m, mux)(chain)
	}
	chain = middleware.CORS(cfg.CORSOrigins)(chain)
	chain = middleware.RequestID(chain)
	return chain
}
