package analyzer

import (
	"encoding/json"

	"github.com/local/inkcost/internal/ink"
)

// PageResult is the cost breakdown of a single page.
type PageResult struct {
	Page     int     `json:"page" yaml:"page"`
	BlackInk float64 `json:"black_ink" yaml:"black_ink"`
	ColorInk float64 `json:"color_ink" yaml:"color_ink"`
	Price    int     `json:"price" yaml:"price"`
}

// Coverage returns the page's ink coverage.
func (p PageResult) Coverage() ink.Coverage {
	return ink.Coverage{Black: p.BlackInk, Color: p.ColorInk}
}

// DocumentResult maps page numbers to results while keeping document order.
type DocumentResult struct {
	pages []PageResult
	index map[int]int
}

func newDocumentResult(n int) *DocumentResult {
	return &DocumentResult{
		pages: make([]PageResult, 0, n),
		index: make(map[int]int, n),
	}
}

func (r *DocumentResult) add(p PageResult) {
	r.index[p.Page] = len(r.pages)
	r.pages = append(r.pages, p)
}

// Len returns the number of pages.
func (r *DocumentResult) Len() int { return len(r.pages) }

// Get looks up a page by its one-based number.
func (r *DocumentResult) Get(page int) (PageResult, bool) {
	i, ok := r.index[page]
	if !ok {
		return PageResult{}, false
	}
	return r.pages[i], true
}

// Pages returns the results in page order. The slice is a copy.
func (r *DocumentResult) Pages() []PageResult {
	out := make([]PageResult, len(r.pages))
	copy(out, r.pages)
	return out
}

// Keys returns the page numbers in page order.
func (r *DocumentResult) Keys() []int {
	out := make([]int, len(r.pages))
	for i, p := range r.pages {
		out[i] = p.Page
	}
	return out
}

// TotalPrice sums the price of every page.
func (r *DocumentResult) TotalPrice() int {
	total := 0
	for _, p := range r.pages {
		total += p.Price
	}
	return total
}

// MarshalJSON encodes the result as an ordered page array with the total.
func (r *DocumentResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Pages      []PageResult `json:"pages"`
		TotalPages int          `json:"total_pages"`
		TotalPrice int          `json:"total_price"`
	}{
		Pages:      r.pages,
		TotalPages: len(r.pages),
		TotalPrice: r.TotalPrice(),
	})
}
