// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package terrain

import (
	"image"
)

// Classified is a Field with each cell replaced by the band it falls in.
type Classified struct {
	width   int
	height  int
	bands   Bands
	indices []uint8
}

// Classify assigns every cell of field to one of bands.
// Invalid bands fail with a *failure.ConfigurationError before any cell is read.
// Neither argument is modified.
func Classify(field *Field, bands Bands) (*Classified, error) {
	if err := bands.Validate(); err != nil {
		return nil, err
	}

	c := &Classified{
		width:   field.width,
		height:  field.height,
		bands:   bands.Clone(),
		indices: make([]uint8, len(field.values)),
	}

	// Cache the last band since neighboring cells are usually in the same one.
	last := 0
	for i, v := range field.values {
		band := &c.bands[last]
		if v < band.Lower || (v >= band.Upper && last != len(c.bands)-1) {
			last = c.bands.Index(v)
		}
		c.indices[i] = uint8(last)
	}

	return c, nil
}

func (c *Classified) Width() int {
	return c.width
}

func (c *Classified) Height() int {
	return c.height
}

func (c *Classified) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.width, c.height)
}

// Bands returns a copy of the bands c was classified with.
func (c *Classified) Bands() Bands {
	return c.bands.Clone()
}

// Index returns the band index at x, y.
func (c *Classified) Index(x, y int) int {
	return int(c.indices[x+y*c.width])
}

// At returns the band at x, y.
func (c *Classified) At(x, y int) Band {
	return c.bands[c.indices[x+y*c.width]]
}

// Color returns the band color at x, y.
func (c *Classified) Color(x, y int) Color {
	return c.bands[c.indices[x+y*c.width]].Color
}

// Palette returns the band colors indexed like Index.
func (c *Classified) Palette() []Color {
	palette := make([]Color, len(c.bands))
	for i, band := range c.bands {
		palette[i] = band.Color
	}
	return palette
}

// Indices exposes the row major band indices for fast rasterization.
// The returned slice must not be modified.
func (c *Classified) Indices() []uint8 {
	return c.indices
}

// Counts returns how many cells fall in each band.
func (c *Classified) Counts() []int {
	counts := make([]int, len(c.bands))
	for _, i := range c.indices {
		counts[i]++
	}
	return counts
}
