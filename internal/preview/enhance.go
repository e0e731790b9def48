package preview

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// sharpenKernel is applied after the contrast scale.
var sharpenKernel = [3][3]float64{
	{0, -0.5, 0},
	{-0.5, 3, -0.5},
	{0, -0.5, 0},
}

// Enhance scales every channel by contrast, saturating at 0 and 255, then
// optionally convolves with sharpenKernel. Borders reflect without repeating
// the edge pixel. The result is opaque.
func Enhance(src image.Image, contrast float64, sharpen bool) *image.RGBA {
	b := src.Bounds()
	scaled := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(scaled, scaled.Bounds(), src, b.Min, draw.Src)
	for i := 0; i < len(scaled.Pix); i += 4 {
		scaled.Pix[i] = clamp(math.Abs(contrast * float64(scaled.Pix[i])))
		scaled.Pix[i+1] = clamp(math.Abs(contrast * float64(scaled.Pix[i+1])))
		scaled.Pix[i+2] = clamp(math.Abs(contrast * float64(scaled.Pix[i+2])))
		scaled.Pix[i+3] = 0xff
	}
	if !sharpen {
		return scaled
	}

	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(scaled.Bounds())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [3]float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					k := sharpenKernel[ky+1][kx+1]
					if k == 0 {
						continue
					}
					off := scaled.PixOffset(reflect101(x+kx, w), reflect101(y+ky, h))
					acc[0] += k * float64(scaled.Pix[off])
					acc[1] += k * float64(scaled.Pix[off+1])
					acc[2] += k * float64(scaled.Pix[off+2])
				}
			}
			out.SetRGBA(x, y, color.RGBA{R: clamp(acc[0]), G: clamp(acc[1]), B: clamp(acc[2]), A: 0xff})
		}
	}
	return out
}

func clamp(v float64) uint8 {
	v = math.RoundToEven(v)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

// reflect101 maps an out-of-range index back into [0, n) as gfedcb|abcdefgh|gfedcba.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}
