package mupdf

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/local/inkcost/internal/analyzer"
	"github.com/local/inkcost/internal/ink"
	"github.com/local/inkcost/internal/pdftest"
)

func TestOpenerRendersAtConfiguredDPI(t *testing.T) {
	t.Parallel()

	path := pdftest.WriteFile(t, t.TempDir(), "size.pdf", pdftest.Blank(144, 72))

	for _, tt := range []struct {
		dpi        float64
		wantWidth  int
		wantHeight int
	}{
		{dpi: 0, wantWidth: 144, wantHeight: 72},
		{dpi: 144, wantWidth: 288, wantHeight: 144},
	} {
		doc, err := NewOpener(tt.dpi).Open(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		img, err := doc.Render(0)
		_ = doc.Close()
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if b := img.Bounds(); b.Dx() != tt.wantWidth || b.Dy() != tt.wantHeight {
			t.Errorf("dpi %v: size = %dx%d, want %dx%d", tt.dpi, b.Dx(), b.Dy(), tt.wantWidth, tt.wantHeight)
		}
	}
}

func TestOpenerRenderOutOfRange(t *testing.T) {
	t.Parallel()

	path := pdftest.WriteFile(t, t.TempDir(), "one.pdf", pdftest.Blank(72, 72))
	doc, err := NewOpener(0).Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer doc.Close()

	if _, err := doc.Render(1); err == nil {
		t.Error("expected error for page past the end")
	}
	if _, err := doc.Render(-1); err == nil {
		t.Error("expected error for negative index")
	}
}

func TestOpenerWithAnalyzer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := pdftest.WriteFile(t, dir, "mixed.pdf",
		pdftest.Blank(100, 100),
		pdftest.Solid(100, 100, 0, 0, 0),
		pdftest.Solid(100, 100, 1, 0, 0),
		pdftest.Page{Width: 100, Height: 100, Fills: []pdftest.Fill{{W: 100, H: 50}}},
	)

	var progress []int
	res, err := analyzer.New(analyzer.Options{Opener: NewOpener(0)}).
		Analyze(context.Background(), path, func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.Len() != 4 {
		t.Fatalf("pages = %d, want 4", res.Len())
	}

	blank, _ := res.Get(1)
	if blank.BlackInk != 0 || blank.ColorInk != 0 || blank.Price != 0 {
		t.Errorf("blank page = %+v", blank)
	}
	full, _ := res.Get(2)
	if full.BlackInk < 99 || full.ColorInk != 0 || full.Price != 3 {
		t.Errorf("black page = %+v", full)
	}
	red, _ := res.Get(3)
	if red.ColorInk < 99 || red.Price != 3 {
		t.Errorf("red page = %+v", red)
	}
	half, _ := res.Get(4)
	if half.BlackInk < 49 || half.BlackInk > 51 || half.Price != ink.StandardTiers.Price(half.Coverage()) {
		t.Errorf("half page = %+v", half)
	}
	if len(progress) != 4 || progress[3] != 100 {
		t.Errorf("progress = %v", progress)
	}

	if n, err := PageCount(path); err != nil || n != 4 {
		t.Errorf("PageCount = %d, %v", n, err)
	}
}

func TestOpenerRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := analyzer.New(analyzer.Options{Opener: NewOpener(0)}).
		Analyze(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), nil)
	var loadErr *analyzer.DocumentLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected DocumentLoadError, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	if err := Probe(); err != nil {
		t.Fatalf("Probe: %v", err)
	}
}
