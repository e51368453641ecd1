// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package terrain

import (
	"image"
	"math"

	"github.com/SoftbearStudios/cartograph/server/failure"
)

// Size is the width and height of every raster handed to the image service.
const Size = 1024

// Field is a heightmap of elevations in [0, 1].
// It never changes after construction; regeneration makes a new Field.
type Field struct {
	width  int
	height int
	values []float64
}

// NewField copies values (row major, width*height long) into a new Field.
// Values are clamped to [0, 1] and NaN becomes 0.
func NewField(width, height int, values []float64) (*Field, error) {
	if width <= 0 || height <= 0 {
		return nil, failure.Configuration("size", "%dx%d is not a valid field size", width, height)
	}
	if len(values) != width*height {
		return nil, failure.Configuration("values", "expected %d values, got %d", width*height, len(values))
	}

	f := &Field{
		width:  width,
		height: height,
		values: make([]float64, len(values)),
	}
	for i, v := range values {
		f.values[i] = clamp01(v)
	}
	return f, nil
}

func (f *Field) Width() int {
	return f.width
}

func (f *Field) Height() int {
	return f.height
}

func (f *Field) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.width, f.height)
}

// At returns the elevation at x, y. Out of range coordinates panic.
func (f *Field) At(x, y int) float64 {
	return f.values[x+y*f.width]
}

// Equal is true if both fields have the same size and bit-identical values.
func (f *Field) Equal(other *Field) bool {
	if f.width != other.width || f.height != other.height {
		return false
	}
	for i, v := range f.values {
		if math.Float64bits(v) != math.Float64bits(other.values[i]) {
			return false
		}
	}
	return true
}

// Gray renders the field as an 8 bit heightmap (black is 0, white is 1).
func (f *Field) Gray() *image.Gray {
	img := image.NewGray(f.Bounds())
	for j := 0; j < f.height; j++ {
		row := img.Pix[j*img.Stride:]
		for i := 0; i < f.width; i++ {
			row[i] = floatToByte(f.values[i+j*f.width])
		}
	}
	return img
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func floatToByte(f float64) byte {
	if f <= 0 {
		return 0
	}
	if f >= 1.0 {
		return 255
	}
	return byte(f*255 + 0.5)
}
