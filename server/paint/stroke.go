// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package paint

import (
	"image"
	"math"

	"github.com/SoftbearStudios/cartograph/server/failure"
	"github.com/SoftbearStudios/cartograph/server/terrain"
	"github.com/chewxy/math32"
)

const (
	DefaultBrushSize = 10
	MinBrushSize     = 1
	MaxBrushSize     = 100

	// MaxStrokePoints bounds a single stroke message.
	MaxStrokePoints = 4096

	// MaxCoordinate bounds the magnitude of a point. Far larger than any
	// layer, small enough that float math on it stays exact to a pixel.
	MaxCoordinate = 1 << 16

	// MaxStrokeArea bounds the area one stroke may sweep inside a layer,
	// about four full 1024 layers.
	MaxStrokeArea = 1 << 22
)

// Point is a position in pixels. Pixel x, y covers [x, x+1) by [y, y+1).
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Stroke is a polyline drawn with a round brush.
// Size is the brush diameter in pixels. Erase strokes unset cells instead
// of painting Color.
type Stroke struct {
	Points []Point       `json:"points"`
	Size   float32       `json:"size"`
	Color  terrain.Color `json:"color"`
	Erase  bool          `json:"erase,omitempty"`
}

// Validate returns a *failure.ValidationError if the stroke can't be drawn.
func (s Stroke) Validate() error {
	if len(s.Points) == 0 {
		return failure.Validation("stroke", "no points")
	}
	if len(s.Points) > MaxStrokePoints {
		return failure.Validation("stroke", "%d points exceeds %d", len(s.Points), MaxStrokePoints)
	}
	if !(s.Size >= MinBrushSize && s.Size <= MaxBrushSize) {
		return failure.Validation("stroke", "brush size %g is not in [%d, %d]", s.Size, MinBrushSize, MaxBrushSize)
	}
	for _, p := range s.Points {
		if math32.IsNaN(p.X) || math32.IsNaN(p.Y) || math32.IsInf(p.X, 0) || math32.IsInf(p.Y, 0) {
			return failure.Validation("stroke", "point %v is not finite", p)
		}
		if math32.Abs(p.X) > MaxCoordinate || math32.Abs(p.Y) > MaxCoordinate {
			return failure.Validation("stroke", "point %v is beyond %d", p, MaxCoordinate)
		}
	}
	return nil
}

// segment is a piece of a stroke clipped to the part that can reach a layer.
type segment struct {
	ax, ay, bx, by float64
}

func (seg segment) length() float64 {
	return math.Hypot(seg.bx-seg.ax, seg.by-seg.ay)
}

// Apply draws s onto l and returns the bounds of the changed region.
// Joins and caps are round, so a single point draws a disc. Strokes that
// would sweep more than MaxStrokeArea pixels of l are rejected whole.
func (l *Layer) Apply(s Stroke) (image.Rectangle, error) {
	if err := s.Validate(); err != nil {
		return image.Rectangle{}, err
	}

	r := float64(s.Size) * 0.5
	segments := make([]segment, 0, len(s.Points))
	area := math.Pi * r * r

	add := func(a, b Point) {
		if seg, ok := l.clip(a, b, r); ok {
			segments = append(segments, seg)
			area += seg.length() * 2 * r
		}
	}
	add(s.Points[0], s.Points[0])
	for i := 1; i < len(s.Points); i++ {
		add(s.Points[i-1], s.Points[i])
	}

	if area > MaxStrokeArea {
		return image.Rectangle{}, failure.Validation("stroke", "sweeps about %.0f pixels, more than %d", area, MaxStrokeArea)
	}

	var dirty image.Rectangle
	for _, seg := range segments {
		dirty = dirty.Union(l.fill(seg, r, s))
	}
	return dirty, nil
}

// clip returns the part of a to b within r of l (Liang-Barsky).
func (l *Layer) clip(a, b Point, r float64) (segment, bool) {
	seg := segment{float64(a.X), float64(a.Y), float64(b.X), float64(b.Y)}
	dx, dy := seg.bx-seg.ax, seg.by-seg.ay

	t0, t1 := 0.0, 1.0
	edges := [...][2]float64{
		{-dx, seg.ax + r},
		{dx, float64(l.width) + r - seg.ax},
		{-dy, seg.ay + r},
		{dy, float64(l.height) + r - seg.ay},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return segment{}, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return segment{}, false
			}
			if t > t0 {
				t0 = t
			}
		} else {
			if t < t0 {
				return segment{}, false
			}
			if t < t1 {
				t1 = t
			}
		}
	}

	return segment{
		ax: seg.ax + t0*dx,
		ay: seg.ay + t0*dy,
		bx: seg.ax + t1*dx,
		by: seg.ay + t1*dy,
	}, true
}

// fill sets every pixel whose center is within r of seg and returns their bounds.
// Each row only scans the span the capsule can cover.
func (l *Layer) fill(seg segment, r float64, s Stroke) image.Rectangle {
	dx, dy := seg.bx-seg.ax, seg.by-seg.ay
	length2 := dx*dx + dy*dy
	length := math.Sqrt(length2)
	r2 := r * r

	minY := clampInt(int(math.Floor(math.Min(seg.ay, seg.by)-r)), 0, l.height)
	maxY := clampInt(int(math.Ceil(math.Max(seg.ay, seg.by)+r))+1, 0, l.height)

	var painted image.Rectangle
	for y := minY; y < maxY; y++ {
		py := float64(y) + 0.5

		lo, hi := math.Inf(1), math.Inf(-1)
		span := func(a, b float64) {
			lo, hi = math.Min(lo, a), math.Max(hi, b)
		}

		// End discs.
		for _, e := range [...][2]float64{{seg.ax, seg.ay}, {seg.bx, seg.by}} {
			if d := py - e[1]; d*d <= r2 {
				h := math.Sqrt(r2 - d*d)
				span(e[0]-h, e[0]+h)
			}
		}

		// Band between the ends.
		if length2 > 0 {
			if dy == 0 {
				if math.Abs(py-seg.ay) <= r {
					span(math.Min(seg.ax, seg.bx), math.Max(seg.ax, seg.bx))
				}
			} else {
				// Within r of the line.
				cx := seg.ax + (py-seg.ay)*dx/dy
				w := r * length / math.Abs(dy)
				bl, bh := cx-w, cx+w
				// Projection within the ends.
				if dx != 0 {
					x0 := seg.ax - (py-seg.ay)*dy/dx
					x1 := x0 + length2/dx
					bl, bh = math.Max(bl, math.Min(x0, x1)), math.Min(bh, math.Max(x0, x1))
				} else {
					if t := (py - seg.ay) / dy; t < 0 || t > 1 {
						bl, bh = 1, 0
					}
				}
				if bl <= bh {
					span(bl, bh)
				}
			}
		}

		if lo > hi {
			continue
		}

		// One pixel of slack; the exact test below decides.
		x0 := clampInt(int(math.Floor(lo-0.5))-1, 0, l.width)
		x1 := clampInt(int(math.Ceil(hi-0.5))+2, 0, l.width)

		rowMin, rowMax := -1, -1
		for x := x0; x < x1; x++ {
			px := float64(x) + 0.5

			// Project onto segment, clamped to its ends.
			var t float64
			if length2 > 0 {
				t = ((px-seg.ax)*dx + (py-seg.ay)*dy) / length2
				t = math.Max(0, math.Min(1, t))
			}
			ex, ey := px-(seg.ax+t*dx), py-(seg.ay+t*dy)
			if ex*ex+ey*ey > r2 {
				continue
			}

			if s.Erase {
				l.Unset(x, y)
			} else {
				l.Set(x, y, s.Color)
			}
			if rowMin == -1 {
				rowMin = x
			}
			rowMax = x
		}
		if rowMin != -1 {
			painted = painted.Union(image.Rect(rowMin, y, rowMax+1, y+1))
		}
	}
	return painted
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
