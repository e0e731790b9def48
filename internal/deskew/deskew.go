// Package deskew straightens scanned page images before recognition.
//
// The skew is read from the minimum-area rectangle around the page's ink:
// the image is reduced to intensity, inverted, binarized with Otsu's global
// threshold, and the rectangle is fitted to the convex hull of the foreground
// pixels. The image is then rotated about its centre with Catmull-Rom
// (cubic) interpolation, replicating edge pixels into the uncovered corners,
// so the output has the same size as the input.
//
// Angles are in degrees, positive meaning counter-clockwise as seen on
// screen.
package deskew

import (
	"image"
	"math"
)

// Correct returns img rotated by its corrected skew angle, and that angle.
// Images without detectable ink are returned unchanged with angle 0.
func Correct(img image.Image) (image.Image, float64) {
	angle := SkewAngle(img)
	if math.Abs(angle) < 1e-6 {
		return img, 0
	}
	return Rotate(img, angle), angle
}

// SkewAngle returns the rotation that aligns the ink's bounding rectangle with
// the page axes. The result lies in (-45, 45].
func SkewAngle(img image.Image) float64 {
	gray := toGray(img)
	threshold := otsu(invertedHistogram(gray))
	pts := foregroundExtremes(gray, threshold)
	hull := convexHull(pts)
	if len(hull) < 3 {
		return 0
	}
	return normalize(rectAngle(hull))
}

// normalize maps a rectangle edge angle in [-90, 0) to the correction angle:
// below -45 the rectangle is read as standing on its other side.
func normalize(theta float64) float64 {
	var corrected float64
	if theta < -45 {
		corrected = -(90 + theta)
	} else {
		corrected = -theta
	}
	if corrected == 0 {
		return 0 // drop the sign of -0
	}
	return corrected
}
