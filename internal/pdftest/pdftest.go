// Package pdftest builds small, valid PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Fill is a solid rectangle painted in DeviceRGB, coordinates in PDF points.
type Fill struct {
	X, Y, W, H float64
	R, G, B    float64 // 0..1
}

// Page is a single page of a generated document.
type Page struct {
	Width  float64
	Height float64
	Fills  []Fill
}

// Letter-sized defaults for callers that do not care about geometry.
const (
	DefaultWidth  = 612
	DefaultHeight = 792
)

// Blank returns an unpainted page of the given size.
func Blank(w, h float64) Page { return Page{Width: w, Height: h} }

// Solid returns a page fully painted with one color.
func Solid(w, h, r, g, b float64) Page {
	return Page{Width: w, Height: h, Fills: []Fill{{W: w, H: h, R: r, G: g, B: b}}}
}

// Build serialises pages into a PDF with a correct cross-reference table.
func Build(pages ...Page) []byte {
	var buf bytes.Buffer
	offsets := []int{0}
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets)-1, body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 3+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)))

	for i, p := range pages {
		var content bytes.Buffer
		for _, f := range p.Fills {
			fmt.Fprintf(&content, "%g %g %g rg\n%g %g %g %g re\nf\n", f.R, f.G, f.B, f.X, f.Y, f.W, f.H)
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources << >> /Contents %d 0 R >>",
			p.Width, p.Height, 4+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets))
	for _, off := range offsets[1:] {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets), xref)
	return buf.Bytes()
}

// WriteFile builds pages into dir/name and returns the path.
func WriteFile(t testing.TB, dir, name string, pages ...Page) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, Build(pages...), 0o644); err != nil {
		t.Fatalf("write pdf fixture: %v", err)
	}
	return p
}
