package analyzer

import "image"

// Document abstracts an opened PDF for rasterization.
type Document interface {
	NumPage() int
	// Render rasterizes the page at the zero-based index.
	Render(index int) (image.Image, error)
	Close() error
}

// Opener abstracts opening a PDF path into a Document.
type Opener interface {
	Open(path string) (Document, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Document, error)

// Open implements Opener.
func (f OpenerFunc) Open(path string) (Document, error) { return f(path) }
