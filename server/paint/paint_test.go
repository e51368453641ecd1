// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package paint

import (
	"errors"
	"image"
	"math/rand"
	"testing"
	"time"

	"github.com/SoftbearStudios/cartograph/server/failure"
	"github.com/SoftbearStudios/cartograph/server/terrain"
)

var red = terrain.RGB(255, 0, 0)

func TestLayer_SetUnset(t *testing.T) {
	l := NewLayer(4, 3)

	l.Set(1, 2, red)
	l.Set(1, 2, red)
	l.Set(-1, 0, red)
	l.Set(4, 0, red)

	if l.Count() != 1 {
		t.Errorf("expected 1 set cell, got %d", l.Count())
	}
	if c, ok := l.At(1, 2); !ok || c != red {
		t.Errorf("At(1, 2) expected %s got %s %v", red, c, ok)
	}
	if _, ok := l.At(0, 0); ok {
		t.Error("At(0, 0) should be unset")
	}

	l.Unset(1, 2)
	if l.Count() != 0 {
		t.Errorf("expected 0 set cells, got %d", l.Count())
	}
}

func TestLayer_Snapshot(t *testing.T) {
	l := NewLayer(8, 8)
	l.Set(3, 3, red)

	snapshot := l.Snapshot()
	l.Set(4, 4, red)
	l.Unset(3, 3)

	if c, ok := snapshot.At(3, 3); !ok || c != red {
		t.Error("snapshot lost cell 3, 3")
	}
	if _, ok := snapshot.At(4, 4); ok {
		t.Error("snapshot saw later paint at 4, 4")
	}
	if snapshot.Count() != 1 {
		t.Errorf("snapshot count expected 1 got %d", snapshot.Count())
	}
}

func TestLayer_ApplyPoint(t *testing.T) {
	l := NewLayer(32, 32)
	dirty, err := l.Apply(Stroke{Points: []Point{{X: 16, Y: 16}}, Size: 4, Color: red})
	if err != nil {
		t.Fatal(err)
	}

	// Disc of radius 2 around 16, 16 covers pixels 14..17.
	if dirty != image.Rect(14, 14, 18, 18) {
		t.Errorf("unexpected dirty rect %v", dirty)
	}
	if _, ok := l.At(15, 15); !ok {
		t.Error("center pixel unset")
	}
	if _, ok := l.At(14, 14); ok {
		t.Error("corner of bounding box should be outside a round brush")
	}
	if _, ok := l.At(20, 16); ok {
		t.Error("pixel outside brush was painted")
	}
}

func TestLayer_ApplyLine(t *testing.T) {
	l := NewLayer(64, 16)
	_, err := l.Apply(Stroke{Points: []Point{{X: 4, Y: 8}, {X: 60, Y: 8}}, Size: 2, Color: red})
	if err != nil {
		t.Fatal(err)
	}
	for x := 4; x < 60; x++ {
		if _, ok := l.At(x, 7); !ok {
			t.Errorf("line gap at %d, 7", x)
		}
	}
	if _, ok := l.At(30, 3); ok {
		t.Error("line too thick")
	}

	// Erasing part of the line.
	_, _ = l.Apply(Stroke{Points: []Point{{X: 30, Y: 8}}, Size: 6, Erase: true})
	if _, ok := l.At(30, 7); ok {
		t.Error("erase left cell set")
	}
	if _, ok := l.At(10, 7); !ok {
		t.Error("erase removed far cell")
	}
}

func TestLayer_ApplyClipped(t *testing.T) {
	l := NewLayer(8, 8)
	dirty, err := l.Apply(Stroke{Points: []Point{{X: -50, Y: -50}}, Size: 10, Color: red})
	if err != nil {
		t.Fatal(err)
	}
	if !dirty.Empty() || l.Count() != 0 {
		t.Errorf("stroke outside layer painted %d cells", l.Count())
	}
}

func TestStroke_Validate(t *testing.T) {
	tests := []Stroke{
		{Size: 10},
		{Points: []Point{{}}, Size: 0},
		{Points: []Point{{}}, Size: MaxBrushSize + 1},
		{Points: make([]Point, MaxStrokePoints+1), Size: 10},
		{Points: []Point{{X: -1e20, Y: 5}, {X: 1e20, Y: 5}}, Size: 10},
		{Points: []Point{{X: 5, Y: MaxCoordinate + 1}}, Size: 10},
	}
	for i, s := range tests {
		if err := s.Validate(); err == nil {
			t.Errorf("stroke %d should be invalid", i)
		}
	}
}

func TestLayer_ApplyLongSegment(t *testing.T) {
	l := NewLayer(64, 16)
	dirty, err := l.Apply(Stroke{Points: []Point{{X: -MaxCoordinate, Y: 5}, {X: MaxCoordinate, Y: 5}}, Size: 2, Color: red})
	if err != nil {
		t.Fatal(err)
	}
	if dirty != image.Rect(0, 4, 64, 6) {
		t.Errorf("unexpected dirty rect %v", dirty)
	}
	for x := 0; x < 64; x++ {
		if _, ok := l.At(x, 5); !ok {
			t.Errorf("row gap at %d, 5", x)
		}
	}
}

// brute paints s the slow way, testing every pixel against every segment.
func brute(width, height int, s Stroke) *Layer {
	l := NewLayer(width, height)
	r := float64(s.Size) * 0.5
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			for i := range s.Points {
				a := s.Points[i]
				if i > 0 {
					a = s.Points[i-1]
				}
				b := s.Points[i]
				ax, ay, dx, dy := float64(a.X), float64(a.Y), float64(b.X-a.X), float64(b.Y-a.Y)
				var t float64
				if length2 := dx*dx + dy*dy; length2 > 0 {
					t = ((px-ax)*dx + (py-ay)*dy) / length2
					if t < 0 {
						t = 0
					} else if t > 1 {
						t = 1
					}
				}
				ex, ey := px-(ax+t*dx), py-(ay+t*dy)
				if ex*ex+ey*ey <= r*r {
					l.Set(x, y, s.Color)
					break
				}
			}
		}
	}
	return l
}

func TestLayer_ApplyMatchesBrute(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		s := Stroke{Size: 1 + r.Float32()*20, Color: red}
		n := 1 + r.Intn(6)
		for j := 0; j < n; j++ {
			s.Points = append(s.Points, Point{X: r.Float32()*80 - 8, Y: r.Float32()*60 - 8})
		}
		// Axis aligned segments take separate paths.
		if i%5 == 0 && len(s.Points) > 1 {
			s.Points[1].X = s.Points[0].X
		} else if i%5 == 1 && len(s.Points) > 1 {
			s.Points[1].Y = s.Points[0].Y
		}

		l := NewLayer(64, 48)
		if _, err := l.Apply(s); err != nil {
			t.Fatal(err)
		}
		if want := brute(64, 48, s); !l.Equal(want) {
			t.Errorf("stroke %d: %d cells, expected %d", i, l.Count(), want.Count())
		}
	}
}

func TestLayer_ApplyZigZag(t *testing.T) {
	l := NewLayer(1024, 1024)
	s := Stroke{Points: make([]Point, MaxStrokePoints), Size: MaxBrushSize, Color: red}
	for i := range s.Points {
		if i%2 == 1 {
			s.Points[i] = Point{X: 1024, Y: 1024}
		}
	}

	start := time.Now()
	_, err := l.Apply(s)
	var val *failure.ValidationError
	if !errors.As(err, &val) {
		t.Errorf("expected ValidationError got %v", err)
	}
	if l.Count() != 0 {
		t.Errorf("rejected stroke painted %d cells", l.Count())
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("rejecting stroke took %s", elapsed)
	}
}

func TestLayer_ApplyBudget(t *testing.T) {
	// Dense jitter stays within the area budget but scans many overlapping caps.
	l := NewLayer(1024, 1024)
	s := Stroke{Points: make([]Point, MaxStrokePoints), Size: MaxBrushSize, Color: red}
	for i := range s.Points {
		s.Points[i] = Point{X: 512 + float32(i%2)*8, Y: 512}
	}

	start := time.Now()
	if _, err := l.Apply(s); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("painting stroke took %s", elapsed)
	}
	if l.Count() == 0 {
		t.Error("stroke painted nothing")
	}
}

func TestRuns(t *testing.T) {
	l := NewLayer(100, 50)
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		_, _ = l.Apply(Stroke{
			Points: []Point{{X: r.Float32() * 100, Y: r.Float32() * 50}, {X: r.Float32() * 100, Y: r.Float32() * 50}},
			Size:   1 + r.Float32()*8,
			Color:  terrain.RGB(byte(r.Intn(256)), byte(r.Intn(256)), byte(r.Intn(256))),
		})
	}

	buf := Encode(l)
	if len(buf) >= 4*100*50 {
		t.Errorf("runs did not compress: %d bytes", len(buf))
	}

	decoded, err := Decode(100, 50, buf)
	if err != nil {
		t.Fatal(err)
	}
	if !decoded.Equal(l) {
		t.Error("decoded layer differs")
	}

	if _, err := Decode(100, 49, buf); err == nil {
		t.Error("expected error decoding into smaller layer")
	}
	if _, err := Decode(100, 50, buf[:len(buf)-1]); err == nil {
		t.Error("expected error decoding truncated runs")
	}
}

func TestRuns_Empty(t *testing.T) {
	l := NewLayer(1024, 1024)
	buf := Encode(l)
	if len(buf) > 4 {
		t.Errorf("empty layer encoded to %d bytes", len(buf))
	}
	decoded, err := Decode(1024, 1024, buf)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Count() != 0 {
		t.Error("decoded empty layer has set cells")
	}
}
