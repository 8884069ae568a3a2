// Package web serves the upload form, the JSON API and live progress.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/inkcost/internal/analyzer"
	"github.com/local/inkcost/internal/ink"
	"github.com/local/inkcost/internal/limiter"
	"github.com/local/inkcost/internal/metrics"
	"github.com/local/inkcost/internal/progress"
	"github.com/local/inkcost/internal/statuscheck"
	"github.com/local/inkcost/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

// Analyzer prices a staged document.
type Analyzer interface {
	Analyze(ctx context.Context, path string, onProgress analyzer.ProgressFunc) (*analyzer.DocumentResult, error)
	Tiers() ink.Tiers
}

// Inspector performs the pre-flight checks on a staged upload.
type Inspector interface {
	RequirePDF(path string) error
	Validate(path string) (int, error)
}

// Fetcher stages documents referenced by URL.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*storage.TempFile, error)
}

// StatusReporter summarizes external dependencies.
type StatusReporter interface {
	Summary(ctx context.Context) statuscheck.Summary
}

// Dependencies wires the handlers to the pricing pipeline.
type Dependencies struct {
	Analyzer  Analyzer
	Inspector Inspector
	Uploads   *storage.Uploads
	Fetcher   Fetcher // optional, enables file_url in the API
	Broker    progress.Broker
	Gate      *limiter.Gate
	Status    StatusReporter // optional
	// MaxUploadBytes caps request bodies; 0 means 64 MiB.
	MaxUploadBytes int64
}

// Web holds the HTTP handlers and parsed templates.
type Web struct {
	deps Dependencies
	tpl  *template.Template
}

// New fills in defaults for the optional dependencies and parses the templates.
func New(deps Dependencies) *Web {
	if deps.Gate == nil {
		deps.Gate = limiter.New(1)
	}
	if deps.Broker == nil {
		deps.Broker = progress.NewHub(0)
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 64 << 20
	}
	tpl := template.Must(template.New("").Funcs(template.FuncMap{
		"pct": formatPercent,
	}).ParseFS(templateFS, "templates/*.html"))
	return &Web{deps: deps, tpl: tpl}
}

// RegisterRoutes mounts every inkcost endpoint on mux.
func (w *Web) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", w.handleForm)
	mux.HandleFunc("POST /{$}", w.handleUpload)
	mux.HandleFunc("POST /api/analyze", w.handleAPIAnalyze)
	mux.HandleFunc("GET /progress/{job}", w.handleProgress)
	mux.Handle("GET /ws/progress/{job}", w.progressStream())
	mux.HandleFunc("GET /health", func(wr http.ResponseWriter, r *http.Request) {
		wr.WriteHeader(http.StatusOK)
		_, _ = wr.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", w.handleStatus)
	mux.Handle("GET /metrics", metrics.Handler())
}

func (w *Web) render(wr http.ResponseWriter, status int, name string, data any) {
	wr.Header().Set("Content-Type", "text/html; charset=utf-8")
	wr.WriteHeader(status)
	if err := w.tpl.ExecuteTemplate(wr, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("template render failed")
	}
}

func (w *Web) handleForm(wr http.ResponseWriter, r *http.Request) {
	w.render(wr, http.StatusOK, "upload.html", map[string]any{
		"JobID": uuid.NewString(),
	})
}

func (w *Web) handleStatus(wr http.ResponseWriter, r *http.Request) {
	if w.deps.Status == nil {
		http.Error(wr, "status unavailable", http.StatusNotFound)
		return
	}
	writeJSON(wr, http.StatusOK, w.deps.Status.Summary(r.Context()))
}

func (w *Web) handleProgress(wr http.ResponseWriter, r *http.Request) {
	id := r.PathValue("job")
	ev, ok := w.deps.Broker.Last(r.Context(), id)
	if !ok {
		http.Error(wr, "not found", http.StatusNotFound)
		return
	}
	writeJSON(wr, http.StatusOK, ev)
}
