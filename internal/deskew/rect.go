package deskew

import (
	"image"
	"math"
	"slices"
)

type point struct{ x, y int64 }

// foregroundExtremes returns the leftmost and rightmost foreground pixel of
// every row. The convex hull of the whole foreground equals the hull of these
// points, which keeps large scans cheap. The y axis is flipped so that angles
// computed from the points are counter-clockwise on screen.
func foregroundExtremes(g *image.Gray, threshold uint8) []point {
	b := g.Bounds()
	var pts []point
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[(y-b.Min.Y)*g.Stride : (y-b.Min.Y)*g.Stride+b.Dx()]
		first, last := -1, -1
		for x, v := range row {
			if 255-v > threshold {
				if first < 0 {
					first = x
				}
				last = x
			}
		}
		if first < 0 {
			continue
		}
		pts = append(pts, point{int64(first), -int64(y)})
		if last != first {
			pts = append(pts, point{int64(last), -int64(y)})
		}
	}
	return pts
}

func cross(o, a, b point) int64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

// convexHull is Andrew's monotone chain; the hull is returned
// counter-clockwise without collinear points.
func convexHull(pts []point) []point {
	if len(pts) < 3 {
		return pts
	}
	pts = slices.Clone(pts)
	slices.SortFunc(pts, func(a, b point) int {
		if a.x != b.x {
			if a.x < b.x {
				return -1
			}
			return 1
		}
		switch {
		case a.y < b.y:
			return -1
		case a.y > b.y:
			return 1
		}
		return 0
	})
	pts = slices.Compact(pts)
	if len(pts) < 3 {
		return pts
	}
	hull := make([]point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// rectAngle fits the minimum-area enclosing rectangle, which always has one
// side collinear with a hull edge, and returns that side's angle reduced to
// [-90, 0).
func rectAngle(hull []point) float64 {
	bestArea := math.Inf(1)
	bestAngle := 0.0
	for i := range hull {
		p, q := hull[i], hull[(i+1)%len(hull)]
		dx, dy := float64(q.x-p.x), float64(q.y-p.y)
		if dx == 0 && dy == 0 {
			continue
		}
		phi := math.Atan2(dy, dx)
		ux, uy := math.Cos(phi), math.Sin(phi)
		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, h := range hull {
			x, y := float64(h.x), float64(h.y)
			u := x*ux + y*uy
			v := -x*uy + y*ux
			minU, maxU = math.Min(minU, u), math.Max(maxU, u)
			minV, maxV = math.Min(minV, v), math.Max(maxV, v)
		}
		if area := (maxU - minU) * (maxV - minV); area < bestArea {
			bestArea = area
			bestAngle = phi * 180 / math.Pi
		}
	}
	theta := math.Mod(bestAngle, 90)
	if theta >= 0 {
		theta -= 90
	}
	return theta
}
