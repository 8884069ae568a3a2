package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"reflect"
	"sync"
	"testing"

	"github.com/local/inkcost/internal/ink"
)

// fakeDoc is an in-memory Document made of solid-color pages.
type fakeDoc struct {
	pages    []color.RGBA
	failAt   int // zero-based page that fails to render, -1 for none
	emptyAt  int // zero-based page that renders with zero area, -1 for none
	mu       sync.Mutex
	rendered []int
	closed   bool
}

func newFakeDoc(pages ...color.RGBA) *fakeDoc {
	return &fakeDoc{pages: pages, failAt: -1, emptyAt: -1}
}

func (d *fakeDoc) NumPage() int { return len(d.pages) }

func (d *fakeDoc) Render(i int) (image.Image, error) {
	d.mu.Lock()
	d.rendered = append(d.rendered, i)
	d.mu.Unlock()
	if i == d.failAt {
		return nil, errors.New("broken content stream")
	}
	if i == d.emptyAt {
		return image.NewRGBA(image.Rect(0, 0, 0, 0)), nil
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, d.pages[i])
		}
	}
	return img, nil
}

func (d *fakeDoc) Close() error {
	d.closed = true
	return nil
}

func openerFor(doc *fakeDoc) Opener {
	return OpenerFunc(func(string) (Document, error) { return doc, nil })
}

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.RGBA{A: 255}
	red   = color.RGBA{R: 255, A: 255}
)

// progressRecorder collects progress percentages.
type progressRecorder struct {
	got []int
}

func (p *progressRecorder) record(pct int) { p.got = append(p.got, pct) }

func TestAnalyzeProducesOrderedResults(t *testing.T) {
	t.Parallel()

	doc := newFakeDoc(white, black, red)
	a := New(Options{Opener: openerFor(doc)})
	var rec progressRecorder

	res, err := a.Analyze(context.Background(), "doc.pdf", rec.record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := res.Keys(), []int{1, 2, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
	if got, want := rec.got, []int{33, 66, 100}; !reflect.DeepEqual(got, want) {
		t.Errorf("progress = %v, want %v", got, want)
	}
	if got, want := doc.rendered, []int{0, 1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("render order = %v, want %v", got, want)
	}
	if !doc.closed {
		t.Error("document was not closed")
	}

	want := []PageResult{
		{Page: 1, BlackInk: 0, ColorInk: 0, Price: 0},
		{Page: 2, BlackInk: 100, ColorInk: 0, Price: 3},
		{Page: 3, BlackInk: 0, ColorInk: 100, Price: 3},
	}
	if got := res.Pages(); !reflect.DeepEqual(got, want) {
		t.Errorf("pages = %+v, want %+v", got, want)
	}
	if p, ok := res.Get(2); !ok || p.Price != 3 {
		t.Errorf("Get(2) = %+v, %v", p, ok)
	}
	if _, ok := res.Get(4); ok {
		t.Error("Get(4) should not exist")
	}
	if res.TotalPrice() != 6 {
		t.Errorf("total price = %d, want 6", res.TotalPrice())
	}
}

func TestAnalyzeProgressIsStrictlyIncreasing(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 2, 7, 13, 100, 101} {
		pages := make([]color.RGBA, n)
		for i := range pages {
			pages[i] = white
		}
		var rec progressRecorder
		res, err := New(Options{Opener: openerFor(newFakeDoc(pages...))}).
			Analyze(context.Background(), "doc.pdf", rec.record)
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		if res.Len() != n || len(rec.got) != n {
			t.Fatalf("n=%d: %d results, %d progress events", n, res.Len(), len(rec.got))
		}
		for i := 1; i < len(rec.got); i++ {
			if rec.got[i] <= rec.got[i-1] && n <= 100 {
				t.Errorf("n=%d: progress not strictly increasing: %v", n, rec.got)
				break
			}
			if rec.got[i] < rec.got[i-1] {
				t.Errorf("n=%d: progress went backwards: %v", n, rec.got)
				break
			}
		}
		if last := rec.got[len(rec.got)-1]; last != 100 {
			t.Errorf("n=%d: last progress = %d, want 100", n, last)
		}
	}
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	t.Parallel()

	doc := newFakeDoc(red, black, white, black)
	a := New(Options{Opener: openerFor(doc)})

	first, err := a.Analyze(context.Background(), "doc.pdf", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := a.Analyze(context.Background(), "doc.pdf", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first.Pages(), second.Pages()) {
		t.Errorf("results differ:\n%+v\n%+v", first.Pages(), second.Pages())
	}
}

func TestAnalyzeLoadError(t *testing.T) {
	t.Parallel()

	cause := errors.New("not a PDF")
	a := New(Options{Opener: OpenerFunc(func(string) (Document, error) { return nil, cause })})
	var rec progressRecorder

	res, err := a.Analyze(context.Background(), "junk.pdf", rec.record)

	var loadErr *DocumentLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected DocumentLoadError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("DocumentLoadError should wrap the cause")
	}
	if loadErr.Path != "junk.pdf" {
		t.Errorf("path = %q", loadErr.Path)
	}
	if res != nil {
		t.Errorf("expected no result, got %+v", res)
	}
	if len(rec.got) != 0 {
		t.Errorf("expected no progress, got %v", rec.got)
	}
}

func TestAnalyzeNilOpener(t *testing.T) {
	t.Parallel()

	_, err := New(Options{}).Analyze(context.Background(), "doc.pdf", nil)
	var loadErr *DocumentLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected DocumentLoadError, got %v", err)
	}
}

func TestAnalyzePageRenderError(t *testing.T) {
	t.Parallel()

	t.Run("renderer failure aborts the document", func(t *testing.T) {
		t.Parallel()

		doc := newFakeDoc(white, black, red, white)
		doc.failAt = 2
		var rec progressRecorder

		res, err := New(Options{Opener: openerFor(doc)}).Analyze(context.Background(), "doc.pdf", rec.record)

		var renderErr *PageRenderError
		if !errors.As(err, &renderErr) {
			t.Fatalf("expected PageRenderError, got %v", err)
		}
		if renderErr.Index != 2 || renderErr.PageNumber() != 3 {
			t.Errorf("index = %d, page = %d", renderErr.Index, renderErr.PageNumber())
		}
		if res != nil {
			t.Error("expected no partial result")
		}
		if got, want := doc.rendered, []int{0, 1, 2}; !reflect.DeepEqual(got, want) {
			t.Errorf("rendered = %v, want %v (later pages must not be skipped to)", got, want)
		}
		if !doc.closed {
			t.Error("document was not closed")
		}
		if len(rec.got) != 2 {
			t.Errorf("progress events = %v, want two", rec.got)
		}
	})

	t.Run("zero-area bitmap is an invalid input", func(t *testing.T) {
		t.Parallel()

		doc := newFakeDoc(white, white)
		doc.emptyAt = 1

		_, err := New(Options{Opener: openerFor(doc)}).Analyze(context.Background(), "doc.pdf", nil)

		var renderErr *PageRenderError
		if !errors.As(err, &renderErr) {
			t.Fatalf("expected PageRenderError, got %v", err)
		}
		if !errors.Is(err, ink.ErrEmptyBitmap) {
			t.Errorf("expected ErrEmptyBitmap in chain, got %v", err)
		}
	})
}

func TestAnalyzeSurvivesPanickingSink(t *testing.T) {
	t.Parallel()

	doc := newFakeDoc(white, black)
	calls := 0
	res, err := New(Options{Opener: openerFor(doc)}).Analyze(context.Background(), "doc.pdf", func(int) {
		calls++
		panic("client went away")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Len() != 2 || calls != 2 {
		t.Errorf("pages = %d, sink calls = %d", res.Len(), calls)
	}
}

func TestAnalyzeEmptyDocument(t *testing.T) {
	t.Parallel()

	var rec progressRecorder
	res, err := New(Options{Opener: openerFor(newFakeDoc())}).Analyze(context.Background(), "doc.pdf", rec.record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Len() != 0 || len(rec.got) != 0 {
		t.Errorf("pages = %d, progress = %v", res.Len(), rec.got)
	}
}

func TestAnalyzeUsesConfiguredTiers(t *testing.T) {
	t.Parallel()

	a := New(Options{Opener: openerFor(newFakeDoc(black)), Tiers: ink.LegacyTiers})
	res, err := a.Analyze(context.Background(), "doc.pdf", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p, _ := res.Get(1); p.Price != 1 {
		t.Errorf("legacy price for full black = %d, want 1", p.Price)
	}
	if a.Tiers().Name != "legacy" {
		t.Errorf("tiers = %q", a.Tiers().Name)
	}
}

func TestDocumentResultJSON(t *testing.T) {
	t.Parallel()

	res, err := New(Options{Opener: openerFor(newFakeDoc(black, white))}).Analyze(context.Background(), "doc.pdf", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Pages      []PageResult `json:"pages"`
		TotalPages int          `json:"total_pages"`
		TotalPrice int          `json:"total_price"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.TotalPages != 2 || decoded.TotalPrice != 3 || decoded.Pages[0].Page != 1 {
		t.Errorf("unexpected JSON: %s", b)
	}
}
