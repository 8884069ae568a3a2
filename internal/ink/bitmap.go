package ink

import (
	"image"
	"image/color"
	"iter"

	"golang.org/x/image/draw"
)

// RGB is a single pixel of a Bitmap.
type RGB struct {
	R, G, B uint8
}

// Achromatic reports whether all three channels are equal.
func (p RGB) Achromatic() bool { return p.R == p.G && p.G == p.B }

// Bitmap is a packed RGB raster, 3 bytes per pixel in row-major order.
// A Bitmap is never modified after construction.
type Bitmap struct {
	width  int
	height int
	pix    []uint8
}

// NewBitmap collapses img to RGB. Alpha is dropped (straight, not premultiplied,
// channel values are kept) and palettes are resolved, so the channel comparison
// sees the same values the image stores.
func NewBitmap(img image.Image) Bitmap {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	bm := Bitmap{width: w, height: h, pix: make([]uint8, 3*w*h)}
	if w == 0 || h == 0 {
		return bm
	}

	switch src := img.(type) {
	case *image.RGBA:
		// go-fitz renders into *image.RGBA with alpha fixed at 255
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, y):]
			for x := 0; x < w; x++ {
				px := row[4*x : 4*x+4]
				if px[3] == 0xff {
					bm.pix[i], bm.pix[i+1], bm.pix[i+2] = px[0], px[1], px[2]
				} else {
					c := color.NRGBAModel.Convert(color.RGBA{R: px[0], G: px[1], B: px[2], A: px[3]}).(color.NRGBA)
					bm.pix[i], bm.pix[i+1], bm.pix[i+2] = c.R, c.G, c.B
				}
				i += 3
			}
		}
	case *image.NRGBA:
		bm.copyNRGBA(src)
	case *image.Gray:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, y):]
			for x := 0; x < w; x++ {
				bm.pix[i], bm.pix[i+1], bm.pix[i+2] = row[x], row[x], row[x]
				i += 3
			}
		}
	default:
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		bm.copyNRGBA(dst)
	}
	return bm
}

func (bm *Bitmap) copyNRGBA(src *image.NRGBA) {
	b := src.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := src.Pix[src.PixOffset(b.Min.X, y):]
		for x := 0; x < bm.width; x++ {
			bm.pix[i], bm.pix[i+1], bm.pix[i+2] = row[4*x], row[4*x+1], row[4*x+2]
			i += 3
		}
	}
}

// Width returns the number of columns.
func (bm Bitmap) Width() int { return bm.width }

// Height returns the number of rows.
func (bm Bitmap) Height() int { return bm.height }

// Len returns the total pixel count.
func (bm Bitmap) Len() int { return bm.width * bm.height }

// Pixels yields every pixel once, row by row.
func (bm Bitmap) Pixels() iter.Seq[RGB] {
	return func(yield func(RGB) bool) {
		for i := 0; i+2 < len(bm.pix); i += 3 {
			if !yield(RGB{bm.pix[i], bm.pix[i+1], bm.pix[i+2]}) {
				return
			}
		}
	}
}
