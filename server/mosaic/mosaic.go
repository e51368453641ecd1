// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mosaic grows a map larger than one generated image.
//
// A seed tile is placed in one corner of a transparent canvas. Tiles are
// then visited at half-tile steps away from that corner. Each tile that
// still has transparent pixels is sent to a Fill along with the background
// showing through, and the result is pasted back.
package mosaic

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/SoftbearStudios/cartograph/server/failure"
)

type Corner uint8

const (
	TopLeft Corner = iota
	TopRight
	BottomLeft
	BottomRight
)

var cornerNames = [...]string{
	TopLeft:     "topLeft",
	TopRight:    "topRight",
	BottomLeft:  "bottomLeft",
	BottomRight: "bottomRight",
}

func (c Corner) String() string {
	if int(c) < len(cornerNames) {
		return cornerNames[c]
	}
	return fmt.Sprintf("Corner(%d)", c)
}

// ParseCorner is the inverse of Corner.String.
func ParseCorner(name string) (Corner, bool) {
	for c, n := range cornerNames {
		if n == name {
			return Corner(c), true
		}
	}
	return 0, false
}

func (c Corner) right() bool {
	return c == TopRight || c == BottomRight
}

func (c Corner) bottom() bool {
	return c == BottomLeft || c == BottomRight
}

// Origin returns the top left of a tile in corner c of a size by size square.
func (c Corner) Origin(size, tile int) image.Point {
	var p image.Point
	if c.right() {
		p.X = size - tile
	}
	if c.bottom() {
		p.Y = size - tile
	}
	return p
}

// Positions returns the top left of every tile, row by row starting from
// corner. Neighbors overlap by half a tile and every pixel is covered.
func Positions(size, tile int, corner Corner) ([]image.Point, error) {
	if tile > size {
		return nil, failure.Validation("tile", "%d is larger than %d", tile, size)
	}
	if tile < 2 {
		return nil, failure.Validation("tile", "%d is too small to step by half", tile)
	}

	xs := steps(size, tile, corner.right())
	ys := steps(size, tile, corner.bottom())

	positions := make([]image.Point, 0, len(xs)*len(ys))
	for _, y := range ys {
		for _, x := range xs {
			positions = append(positions, image.Pt(x, y))
		}
	}
	return positions, nil
}

func steps(size, tile int, reverse bool) []int {
	end := size - tile
	var s []int
	for i := 0; i <= end; i += tile / 2 {
		s = append(s, i)
	}
	// Stride doesn't divide evenly.
	if s[len(s)-1] != end {
		s = append(s, end)
	}
	if reverse {
		for i := range s {
			s[i] = end - s[i]
		}
	}
	return s
}

// Place composites src over dst with src's top left at at.
func Place(dst *image.NRGBA, src image.Image, at image.Point) {
	b := src.Bounds()
	draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(b.Size())}, src, b.Min, draw.Over)
}

// Crop copies r out of src. r must lie within src.
func Crop(src image.Image, r image.Rectangle) (*image.NRGBA, error) {
	if !r.In(src.Bounds()) {
		return nil, failure.Validation("crop", "%v is outside %v", r, src.Bounds())
	}
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Rect, src, r.Min, draw.Src)
	return dst, nil
}

// NeedsFill reports whether img has any fully transparent pixel.
func NeedsFill(img *image.NRGBA) bool {
	b := img.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 3; i < len(row); i += 4 {
			if row[i] == 0 {
				return true
			}
		}
	}
	return false
}

// Fill generates a tile. reference is the background with the mosaic so far
// over it. Transparent pixels of mask are the ones to fill.
type Fill func(ctx context.Context, reference, mask *image.NRGBA) (image.Image, error)

// Build grows a mosaic the size of background from seed placed at corner.
// background must be square and at least as large as seed. progress, if not
// nil, is called after each tile.
func Build(ctx context.Context, background, seed image.Image, corner Corner, fill Fill, progress func(done, total int)) (*image.NRGBA, error) {
	size := background.Bounds().Size()
	if size.X != size.Y {
		return nil, failure.Validation("background", "%dx%d is not square", size.X, size.Y)
	}
	tile := seed.Bounds().Size()
	if tile.X != tile.Y {
		return nil, failure.Validation("seed", "%dx%d is not square", tile.X, tile.Y)
	}
	positions, err := Positions(size.X, tile.X, corner)
	if err != nil {
		return nil, err
	}

	bg, _ := Crop(background, background.Bounds())
	current := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	Place(current, seed, corner.Origin(size.X, tile.X))

	for i, at := range positions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r := image.Rectangle{Min: at, Max: at.Add(tile)}
		mask, err := Crop(current, r)
		if err != nil {
			return nil, err
		}
		if NeedsFill(mask) {
			reference, err := Crop(bg, r)
			if err != nil {
				return nil, err
			}
			Place(reference, mask, image.Point{})

			patch, err := fill(ctx, reference, mask)
			if err != nil {
				return nil, err
			}
			if patch.Bounds().Size() != tile {
				return nil, failure.External(failure.MalformedResponse, fmt.Errorf("tile is %v, expected %v", patch.Bounds().Size(), tile))
			}
			Place(current, patch, at)
		}

		if progress != nil {
			progress(i+1, len(positions))
		}
	}
	return current, nil
}
