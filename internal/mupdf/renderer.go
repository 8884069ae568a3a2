package mupdf

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/inkcost/internal/analyzer"
)

// DefaultDPI is MuPDF's native resolution (1 pixel per PDF point).
const DefaultDPI = 72.0

// Opener opens PDFs with go-fitz (embedded MuPDF, no external tools needed).
type Opener struct {
	dpi float64
}

// NewOpener creates a go-fitz backed opener rendering at dpi.
// A non-positive dpi selects DefaultDPI.
func NewOpener(dpi float64) *Opener {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Opener{dpi: dpi}
}

// DPI returns the rendering resolution.
func (o *Opener) DPI() float64 { return o.dpi }

// Open implements analyzer.Opener.
func (o *Opener) Open(path string) (analyzer.Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &document{doc: doc, dpi: o.dpi}, nil
}

type document struct {
	doc *fitz.Document
	dpi float64
}

func (d *document) NumPage() int { return d.doc.NumPage() }

// Render rasterizes a page (go-fitz uses 0-based indexing) into RGBA.
func (d *document) Render(index int) (image.Image, error) {
	if index < 0 || index >= d.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", index+1, d.doc.NumPage())
	}
	img, err := d.doc.ImageDPI(index, d.dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", index+1, err)
	}

	log.Debug().
		Int("page", index+1).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Float64("dpi", d.dpi).
		Msg("rendered page")

	return img, nil
}

func (d *document) Close() error { return d.doc.Close() }

// PageCount returns the number of pages in a PDF using go-fitz.
func PageCount(pdfPath string) (int, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	return doc.NumPage(), nil
}

// probePDF is a single blank 8x8pt page.
const probePDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 8 8] >>\nendobj\nxref\n0 4\n0000000000 65535 f \n0000000009 00000 n \n0000000058 00000 n \n0000000115 00000 n \ntrailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n182\n%%EOF\n"

// Probe renders a built-in page to confirm the embedded renderer works.
func Probe() error {
	doc, err := fitz.NewFromMemory([]byte(probePDF))
	if err != nil {
		return fmt.Errorf("open probe document: %w", err)
	}
	defer doc.Close()
	if _, err := doc.ImageDPI(0, DefaultDPI); err != nil {
		return fmt.Errorf("render probe page: %w", err)
	}
	return nil
}
