package analyzer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/inkcost/internal/ink"
	"github.com/local/inkcost/internal/metrics"
)

// ProgressFunc receives the integer percentage of pages completed.
// It must not block; the analyzer does not wait on delivery.
type ProgressFunc func(percent int)

// Options configures an Analyzer.
type Options struct {
	Opener Opener
	Tiers  ink.Tiers
}

// Analyzer rasterizes, classifies and prices every page of a document.
// It keeps no state between documents and is safe for concurrent use.
type Analyzer struct {
	opener Opener
	tiers  ink.Tiers
}

// New creates an Analyzer. A zero Tiers selects ink.StandardTiers.
func New(opts Options) *Analyzer {
	if opts.Tiers.Black == nil && opts.Tiers.Color == nil {
		opts.Tiers = ink.StandardTiers
	}
	return &Analyzer{opener: opts.Opener, tiers: opts.Tiers}
}

// Tiers returns the price list in use.
func (a *Analyzer) Tiers() ink.Tiers { return a.tiers }

// Analyze processes the document at path page by page, in order, and reports
// progress after each page. Any failure aborts the whole document; no partial
// result is returned. The context only carries the logger: analysis is not
// cancellable once started.
func (a *Analyzer) Analyze(ctx context.Context, path string, onProgress ProgressFunc) (*DocumentResult, error) {
	l := zerolog.Ctx(ctx)
	start := time.Now()

	if a.opener == nil {
		return nil, &DocumentLoadError{Path: path, Err: errors.New("no PDF opener configured")}
	}
	doc, err := a.opener.Open(path)
	if err != nil {
		metrics.IncDocument("load_error")
		l.Warn().Err(err).Str("file", filepath.Base(path)).Msg("failed to open document")
		return nil, &DocumentLoadError{Path: path, Err: err}
	}
	defer doc.Close()

	total := doc.NumPage()
	if total < 0 {
		metrics.IncDocument("load_error")
		return nil, &DocumentLoadError{Path: path, Err: fmt.Errorf("invalid page count %d", total)}
	}

	l.Info().
		Str("file", filepath.Base(path)).
		Int("pages", total).
		Str("pricing", a.tiers.Name).
		Msg("analysis started")

	res := newDocumentResult(total)
	for i := 0; i < total; i++ {
		page, err := a.analyzePage(doc, i)
		if err != nil {
			metrics.IncDocument("render_error")
			l.Error().Err(err).Int("page", i+1).Msg("page analysis failed; aborting document")
			return nil, err
		}
		res.add(page)
		metrics.ObservePage(page.Price)

		l.Debug().
			Int("page", page.Page).
			Float64("black_ink", page.BlackInk).
			Float64("color_ink", page.ColorInk).
			Int("price", page.Price).
			Msg("page analyzed")

		notify(l, onProgress, (i+1)*100/total)
	}

	elapsed := time.Since(start)
	metrics.IncDocument("success")
	metrics.ObserveDuration(elapsed)
	l.Info().
		Int("pages", total).
		Int("total_price", res.TotalPrice()).
		Dur("duration", elapsed).
		Msg("analysis completed")

	return res, nil
}

func (a *Analyzer) analyzePage(doc Document, index int) (PageResult, error) {
	img, err := doc.Render(index)
	if err != nil {
		return PageResult{}, &PageRenderError{Index: index, Err: err}
	}
	if img == nil {
		return PageResult{}, &PageRenderError{Index: index, Err: errors.New("renderer returned no image")}
	}
	cov, err := ink.Classify(ink.NewBitmap(img))
	if err != nil {
		return PageResult{}, &PageRenderError{Index: index, Err: err}
	}
	return PageResult{
		Page:     index + 1,
		BlackInk: cov.Black,
		ColorInk: cov.Color,
		Price:    a.tiers.Price(cov),
	}, nil
}

// notify delivers progress and swallows sink panics so delivery problems never
// abort the analysis.
func notify(l *zerolog.Logger, fn ProgressFunc, percent int) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.Warn().Interface("panic", r).Int("progress", percent).Msg("progress sink failed")
		}
	}()
	fn(percent)
}
