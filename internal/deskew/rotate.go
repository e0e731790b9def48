package deskew

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Rotate turns img by angle degrees about its centre (integer-halved, as
// scanners report it). The result has img's width and height at origin
// (0, 0); corners uncovered by the rotation repeat the nearest edge pixel.
func Rotate(img image.Image, angle float64) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if angle == 0 || w == 0 || h == 0 {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}

	rad := angle * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	hw, hh := float64(w)/2, float64(h)/2
	padX := int(math.Ceil(hw*math.Abs(cos)+hh*math.Abs(sin)-hw)) + 3
	padY := int(math.Ceil(hw*math.Abs(sin)+hh*math.Abs(cos)-hh)) + 3
	src := replicatePad(img, padX, padY)

	// Source-to-destination map: rotation about (cx, cy) applied to the
	// unpadded coordinates.
	cx, cy := float64(w/2), float64(h/2)
	tx := (1-cos)*cx - sin*cy
	ty := sin*cx + (1-cos)*cy
	px, py := float64(padX), float64(padY)
	s2d := f64.Aff3{
		cos, sin, tx - cos*px - sin*py,
		-sin, cos, ty + sin*px - cos*py,
	}
	draw.CatmullRom.Transform(dst, s2d, src, src.Bounds(), draw.Src, nil)
	return dst
}

// replicatePad copies img into a larger canvas whose margins repeat the
// outermost rows and columns.
func replicatePad(img image.Image, padX, padY int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	inner := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(inner, inner.Bounds(), img, b.Min, draw.Src)

	out := image.NewRGBA(image.Rect(0, 0, w+2*padX, h+2*padY))
	for y := 0; y < out.Rect.Dy(); y++ {
		sy := min(max(y-padY, 0), h-1)
		srcRow := inner.Pix[sy*inner.Stride : sy*inner.Stride+4*w]
		dstRow := out.Pix[y*out.Stride : y*out.Stride+4*out.Rect.Dx()]
		left, right := srcRow[:4], srcRow[4*(w-1):]
		for x := 0; x < padX; x++ {
			copy(dstRow[4*x:], left)
			copy(dstRow[4*(padX+w+x):], right)
		}
		copy(dstRow[4*padX:], srcRow)
	}
	return out
}
