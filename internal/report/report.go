// Package report renders analysis results for the command line.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/local/inkcost/internal/analyzer"
)

// ErrUnknownFormat is returned by New for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown report format")

// Formats lists the accepted output formats.
var Formats = []string{"markdown", "json", "yaml"}

// Document is the outcome of analyzing one file.
type Document struct {
	File       string                `json:"file" yaml:"file"`
	Pricing    string                `json:"pricing" yaml:"pricing"`
	Pages      []analyzer.PageResult `json:"pages" yaml:"pages"`
	TotalPrice int                   `json:"total_price" yaml:"total_price"`
	Error      string                `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewDocument builds a Document from an analysis outcome. A failed analysis
// carries the error and no pages.
func NewDocument(file, pricing string, res *analyzer.DocumentResult, err error) Document {
	d := Document{File: file, Pricing: pricing, Pages: []analyzer.PageResult{}}
	if err != nil {
		d.Error = err.Error()
		return d
	}
	if res != nil {
		d.Pages = res.Pages()
		d.TotalPrice = res.TotalPrice()
	}
	return d
}

// Failed reports whether the document could not be analyzed.
func (d Document) Failed() bool { return d.Error != "" }

// Report groups the documents of one run.
type Report struct {
	GeneratedAt time.Time  `json:"generated_at" yaml:"generated_at"`
	Documents   []Document `json:"documents" yaml:"documents"`
	TotalPrice  int        `json:"total_price" yaml:"total_price"`
	Failed      int        `json:"failed" yaml:"failed"`
}

// NewReport assembles a report and computes its totals.
func NewReport(docs ...Document) *Report {
	r := &Report{GeneratedAt: time.Now().UTC(), Documents: docs}
	for _, d := range docs {
		if d.Failed() {
			r.Failed++
			continue
		}
		r.TotalPrice += d.TotalPrice
	}
	return r
}

// Writer outputs a report in one format.
type Writer interface {
	Write(r *Report) (int, error)
}

// New returns the writer for format.
func New(format string, output io.Writer) (Writer, error) {
	switch strings.ToLower(format) {
	case "", "markdown", "md":
		return NewMarkdownWriter(output), nil
	case "json":
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case "yaml", "yml":
		return NewYAMLWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, format, strings.Join(Formats, ", "))
	}
}
