package analyzer

import "fmt"

// DocumentLoadError is returned when the document cannot be opened or parsed.
// No pages were analyzed and no progress was reported.
type DocumentLoadError struct {
	Path string
	Err  error
}

func (e *DocumentLoadError) Error() string {
	return fmt.Sprintf("load document %s: %v", e.Path, e.Err)
}

func (e *DocumentLoadError) Unwrap() error { return e.Err }

// PageRenderError is returned when a page cannot be rasterized or yields an
// unusable bitmap. It aborts the whole document.
type PageRenderError struct {
	Index int // zero-based
	Err   error
}

func (e *PageRenderError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Index+1, e.Err)
}

func (e *PageRenderError) Unwrap() error { return e.Err }

// PageNumber returns the one-based page number that failed.
func (e *PageRenderError) PageNumber() int { return e.Index + 1 }
