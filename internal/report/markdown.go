package report

import (
	"io"

	"github.com/nao1215/markdown"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MarkdownWriter outputs one table per document.
type MarkdownWriter struct {
	output  io.Writer
	printer *message.Printer
}

// MarkdownOption configures a MarkdownWriter.
type MarkdownOption func(*MarkdownWriter)

// WithLanguage formats numbers for tag (default English).
func WithLanguage(tag language.Tag) MarkdownOption {
	return func(w *MarkdownWriter) { w.printer = message.NewPrinter(tag) }
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownOption) *MarkdownWriter {
	w := &MarkdownWriter{output: output, printer: message.NewPrinter(language.English)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *MarkdownWriter) Write(r *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Print cost report")
	md.PlainText("")

	for _, d := range r.Documents {
		w.writeDocument(md, d)
	}

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Documents", "Failed", "Total price"},
		Rows: [][]string{{
			w.printer.Sprintf("%d", len(r.Documents)),
			w.printer.Sprintf("%d", r.Failed),
			w.printer.Sprintf("%d", r.TotalPrice),
		}},
	})

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeDocument(md *markdown.Markdown, d Document) {
	md.H2(d.File)
	md.PlainText("")
	if d.Failed() {
		md.PlainText("Error: " + d.Error)
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(d.Pages)+1)
	for _, p := range d.Pages {
		rows = append(rows, []string{
			w.printer.Sprintf("%d", p.Page),
			w.printer.Sprintf("%.2f", p.BlackInk),
			w.printer.Sprintf("%.2f", p.ColorInk),
			w.printer.Sprintf("%d", p.Price),
		})
	}
	rows = append(rows, []string{"Total", "", "", w.printer.Sprintf("%d", d.TotalPrice)})

	md.PlainText("Pricing: " + d.Pricing)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Page", "Black ink (%)", "Color ink (%)", "Price"},
		Rows:   rows,
	})
	md.PlainText("")
}
