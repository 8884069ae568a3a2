package ink

import "errors"

// ErrEmptyBitmap is returned when a bitmap has no pixels to classify.
var ErrEmptyBitmap = errors.New("ink: bitmap has zero pixels")

// Coverage is the share of a page's pixels, in percent, needing black or color ink.
type Coverage struct {
	Black float64 `json:"black_ink" yaml:"black_ink"`
	Color float64 `json:"color_ink" yaml:"color_ink"`
}

// Counts holds the raw pixel tallies behind a Coverage.
type Counts struct {
	Black int
	Color int
	White int
}

// Total returns the number of pixels counted.
func (c Counts) Total() int { return c.Black + c.Color + c.White }

// Count sorts every pixel into one of three buckets: pure white (no ink),
// achromatic non-white (black ink) and anything with unequal channels (color ink).
func Count(bm Bitmap) Counts {
	var c Counts
	for p := range bm.Pixels() {
		switch {
		case !p.Achromatic():
			c.Color++
		case p.R == 0xff:
			c.White++
		default:
			c.Black++
		}
	}
	return c
}

// Classify returns the black and color coverage of bm. Percentages are exact
// ratios of the pixel total; rounding is left to presentation.
func Classify(bm Bitmap) (Coverage, error) {
	total := bm.Len()
	if total <= 0 {
		return Coverage{}, ErrEmptyBitmap
	}
	c := Count(bm)
	return Coverage{
		Black: float64(c.Black) / float64(total) * 100,
		Color: float64(c.Color) / float64(total) * 100,
	}, nil
}
