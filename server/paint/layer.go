// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package paint stores user painted color overrides.
package paint

import (
	"image"

	"github.com/SoftbearStudios/cartograph/server/terrain"
)

// Cell is one pixel of a Layer. An unset cell defers to the terrain color.
type Cell struct {
	Color terrain.Color
	Set   bool
}

// Layer is a dense grid of Cells.
// It is not safe for concurrent use; hand other goroutines a Snapshot.
type Layer struct {
	width  int
	height int
	cells  []Cell
	count  int // set cells
}

// NewLayer returns an empty width by height layer.
func NewLayer(width, height int) *Layer {
	return &Layer{
		width:  width,
		height: height,
		cells:  make([]Cell, width*height),
	}
}

func (l *Layer) Width() int {
	return l.width
}

func (l *Layer) Height() int {
	return l.height
}

func (l *Layer) Bounds() image.Rectangle {
	return image.Rect(0, 0, l.width, l.height)
}

// Count is the number of set cells.
func (l *Layer) Count() int {
	return l.count
}

func (l *Layer) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < l.width && y < l.height
}

// At returns the color at x, y and whether it is set.
func (l *Layer) At(x, y int) (terrain.Color, bool) {
	if !l.inside(x, y) {
		return terrain.Color{}, false
	}
	c := l.cells[x+y*l.width]
	return c.Color, c.Set
}

// Set paints x, y. Out of bounds coordinates are ignored.
func (l *Layer) Set(x, y int, color terrain.Color) {
	if !l.inside(x, y) {
		return
	}
	cell := &l.cells[x+y*l.width]
	if !cell.Set {
		l.count++
	}
	*cell = Cell{Color: color, Set: true}
}

// Unset erases x, y. Out of bounds coordinates are ignored.
func (l *Layer) Unset(x, y int) {
	if !l.inside(x, y) {
		return
	}
	cell := &l.cells[x+y*l.width]
	if cell.Set {
		l.count--
	}
	*cell = Cell{}
}

// Clear unsets every cell.
func (l *Layer) Clear() {
	for i := range l.cells {
		l.cells[i] = Cell{}
	}
	l.count = 0
}

// Snapshot returns a deep copy of l.
func (l *Layer) Snapshot() *Layer {
	if l == nil {
		return nil
	}
	snapshot := *l
	snapshot.cells = make([]Cell, len(l.cells))
	copy(snapshot.cells, l.cells)
	return &snapshot
}

// Cells exposes the row major cells for fast compositing.
// The returned slice must not be modified.
func (l *Layer) Cells() []Cell {
	return l.cells
}

// Equal is true if both layers have the same size and cells.
func (l *Layer) Equal(other *Layer) bool {
	if l.width != other.width || l.height != other.height || l.count != other.count {
		return false
	}
	for i, c := range l.cells {
		if c != other.cells[i] {
			return false
		}
	}
	return true
}
