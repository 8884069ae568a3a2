package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/local/inkcost/internal/analyzer"
	"github.com/local/inkcost/internal/filetype"
	"github.com/local/inkcost/internal/logger"
	"github.com/local/inkcost/internal/metrics"
	"github.com/local/inkcost/internal/progress"
	"github.com/local/inkcost/internal/storage"
)

// ErrInvalidUpload is returned when a request carries no file or an empty file name.
var ErrInvalidUpload = errors.New("no file uploaded")

// ErrBusy is returned when every analysis slot is taken.
var ErrBusy = errors.New("too many analyses in progress")

// multipartMemory is how much of a multipart body is kept in memory before spilling to disk.
const multipartMemory = 8 << 20

// pageRow is the presentation form of a page; percentages are rounded here only.
type pageRow struct {
	Page     int
	BlackInk float64
	ColorInk float64
	Price    int
}

type resultView struct {
	JobID      string
	File       string
	Pricing    string
	Pages      []pageRow
	TotalPrice int
}

type errorView struct {
	Title   string
	Message string
}

type apiRequest struct {
	FileURL string `json:"file_url"`
	JobID   string `json:"job_id"`
}

type apiResponse struct {
	JobID  string                   `json:"job_id"`
	File   string                   `json:"file"`
	Result *analyzer.DocumentResult `json:"result"`
}

type apiError struct {
	Error string `json:"error"`
	Page  int    `json:"page,omitempty"`
}

func (w *Web) handleUpload(wr http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(wr, r.Body, w.deps.MaxUploadBytes)
	jobID, tf, err := w.receiveUpload(r)
	if err != nil {
		if errors.Is(err, ErrInvalidUpload) {
			metrics.IncUpload("invalid")
			http.Redirect(wr, r, "/", http.StatusSeeOther)
			return
		}
		status, msg, _ := classify(err)
		w.render(wr, status, "error.html", errorView{Title: http.StatusText(status), Message: msg})
		return
	}
	defer tf.Remove()

	res, err := w.analyze(r.Context(), jobID, tf.Path)
	if err != nil {
		status, msg, _ := classify(err)
		w.render(wr, status, "error.html", errorView{Title: http.StatusText(status), Message: msg})
		return
	}
	w.render(wr, http.StatusOK, "result.html", newResultView(jobID, tf.Name, w.deps.Analyzer.Tiers().Name, res))
}

func (w *Web) handleAPIAnalyze(wr http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(wr, r.Body, w.deps.MaxUploadBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		jobID string
		tf    *storage.TempFile
		err   error
	)
	switch ct {
	case "multipart/form-data":
		jobID, tf, err = w.receiveUpload(r)
	case "application/json":
		jobID, tf, err = w.receiveRef(r)
	default:
		err = fmt.Errorf("%w: expected multipart/form-data or application/json", ErrInvalidUpload)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidUpload) {
			metrics.IncUpload("invalid")
		}
		status, msg, page := classify(err)
		writeJSON(wr, status, apiError{Error: msg, Page: page})
		return
	}
	defer tf.Remove()

	res, err := w.analyze(r.Context(), jobID, tf.Path)
	if err != nil {
		status, msg, page := classify(err)
		writeJSON(wr, status, apiError{Error: msg, Page: page})
		return
	}
	writeJSON(wr, http.StatusOK, apiResponse{JobID: jobID, File: tf.Name, Result: res})
}

// receiveUpload stages the "file" part of a multipart request.
func (w *Web) receiveUpload(r *http.Request) (string, *storage.TempFile, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return "", nil, fmt.Errorf("%w: %d bytes allowed", storage.ErrTooLarge, tooBig.Limit)
		}
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}
	defer file.Close()
	if hdr.Filename == "" {
		return "", nil, ErrInvalidUpload
	}

	tf, err := w.save(hdr, file)
	if err != nil {
		return "", nil, err
	}
	return jobIDFrom(r.FormValue("job_id")), tf, nil
}

func (w *Web) save(hdr *multipart.FileHeader, file multipart.File) (*storage.TempFile, error) {
	tf, err := w.deps.Uploads.Save(hdr.Filename, file)
	if errors.Is(err, storage.ErrEmptyName) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}
	return tf, err
}

// receiveRef stages the document a JSON request points to.
func (w *Web) receiveRef(r *http.Request) (string, *storage.TempFile, error) {
	var req apiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", nil, fmt.Errorf("%w: invalid json", ErrInvalidUpload)
	}
	if req.FileURL == "" {
		return "", nil, fmt.Errorf("%w: missing file_url", ErrInvalidUpload)
	}
	if w.deps.Fetcher == nil {
		return "", nil, fmt.Errorf("%w: remote documents disabled", storage.ErrUnsupportedRef)
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()
	tf, err := w.deps.Fetcher.Fetch(ctx, req.FileURL)
	if err != nil {
		return "", nil, err
	}
	return jobIDFrom(req.JobID), tf, nil
}

// analyze runs the pre-flight checks and the analysis for a staged file. The
// analysis is detached from the request so a client disconnect cannot abort it.
func (w *Web) analyze(reqCtx context.Context, jobID, path string) (res *analyzer.DocumentResult, err error) {
	ctx := logger.WithJob(context.WithoutCancel(reqCtx), jobID)
	l := zerolog.Ctx(ctx)

	release, ok := w.deps.Gate.Allow()
	if !ok {
		metrics.IncUpload("busy")
		l.Warn().Int("limit", w.deps.Gate.Max()).Msg("analysis rejected: at capacity")
		return nil, ErrBusy
	}
	defer release()
	defer func() { progress.Finish(w.deps.Broker, jobID, err) }()

	if w.deps.Inspector != nil {
		if err := w.deps.Inspector.RequirePDF(path); err != nil {
			metrics.IncUpload("unsupported")
			return nil, err
		}
		if _, err := w.deps.Inspector.Validate(path); err != nil {
			metrics.IncDocument("load_error")
			return nil, &analyzer.DocumentLoadError{Path: path, Err: err}
		}
	}
	metrics.IncUpload("accepted")
	return w.deps.Analyzer.Analyze(ctx, path, progress.Sink(w.deps.Broker, jobID))
}

// classify maps an error to an HTTP status, a user-facing message and, for
// page failures, the 1-based page number.
func classify(err error) (int, string, int) {
	var (
		loadErr *analyzer.DocumentLoadError
		pageErr *analyzer.PageRenderError
	)
	switch {
	case errors.As(err, &pageErr):
		return http.StatusUnprocessableEntity, fmt.Sprintf("Page %d could not be analyzed: %v", pageErr.PageNumber(), pageErr.Err), pageErr.PageNumber()
	case errors.As(err, &loadErr):
		return http.StatusUnprocessableEntity, "The document could not be opened as a PDF.", 0
	case errors.Is(err, filetype.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, "Only PDF documents are supported.", 0
	case errors.Is(err, ErrBusy):
		return http.StatusServiceUnavailable, "The server is busy; try again shortly.", 0
	case errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "The document is too large.", 0
	case errors.Is(err, ErrInvalidUpload), errors.Is(err, storage.ErrUnsupportedRef):
		return http.StatusBadRequest, err.Error(), 0
	default:
		return http.StatusInternalServerError, "Internal error.", 0
	}
}

func newResultView(jobID, file, pricing string, res *analyzer.DocumentResult) resultView {
	v := resultView{JobID: jobID, File: file, Pricing: pricing, TotalPrice: res.TotalPrice()}
	for _, p := range res.Pages() {
		v.Pages = append(v.Pages, pageRow{
			Page:     p.Page,
			BlackInk: round2(p.BlackInk),
			ColorInk: round2(p.ColorInk),
			Price:    p.Price,
		})
	}
	return v
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func formatPercent(v float64) string { return fmt.Sprintf("%.2f", v) }

func jobIDFrom(v string) string {
	if _, err := uuid.Parse(v); err == nil {
		return v
	}
	return uuid.NewString()
}

func writeJSON(wr http.ResponseWriter, status int, v any) {
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(status)
	_ = json.NewEncoder(wr).Encode(v)
}
