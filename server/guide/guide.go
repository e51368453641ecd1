// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package guide composites classified terrain and paint into the raster
// handed to the image generator.
package guide

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"

	"github.com/SoftbearStudios/cartograph/server/failure"
	"github.com/SoftbearStudios/cartograph/server/paint"
	"github.com/SoftbearStudios/cartograph/server/terrain"
	"github.com/nfnt/resize"
)

// Image is an opaque RGB raster. It is never modified after construction.
type Image struct {
	rgba *image.RGBA
}

// Build colors each cell with its band, then overrides every set paint cell
// with its paint color. layer may be nil. Neither argument is modified.
func Build(classified *terrain.Classified, layer *paint.Layer) (*Image, error) {
	width, height := classified.Width(), classified.Height()
	if layer != nil && (layer.Width() != width || layer.Height() != height) {
		return nil, failure.Validation("paint", "layer is %dx%d but terrain is %dx%d",
			layer.Width(), layer.Height(), width, height)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	palette := classified.Palette()
	indices := classified.Indices()

	var cells []paint.Cell
	if layer != nil && layer.Count() > 0 {
		cells = layer.Cells()
	}

	// RGBA stride is always 4*width for a freshly allocated image.
	pix := rgba.Pix
	for i, index := range indices {
		c := palette[index]
		if cells != nil && cells[i].Set {
			c = cells[i].Color
		}
		p := pix[i*4 : i*4+4 : i*4+4]
		p[0] = c[0]
		p[1] = c[1]
		p[2] = c[2]
		p[3] = 255
	}

	return &Image{rgba: rgba}, nil
}

// FromImage copies any image into an opaque RGB raster.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	for i := 3; i < len(rgba.Pix); i += 4 {
		rgba.Pix[i] = 255
	}
	return &Image{rgba: rgba}
}

// DecodePNG decodes a PNG into an Image.
func DecodePNG(data []byte) (*Image, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return FromImage(src), nil
}

func (img *Image) Width() int {
	return img.rgba.Rect.Dx()
}

func (img *Image) Height() int {
	return img.rgba.Rect.Dy()
}

func (img *Image) Bounds() image.Rectangle {
	return img.rgba.Rect
}

// At returns the color of pixel x, y.
func (img *Image) At(x, y int) terrain.Color {
	i := img.rgba.PixOffset(x, y)
	return terrain.RGB(img.rgba.Pix[i], img.rgba.Pix[i+1], img.rgba.Pix[i+2])
}

// Image returns img as a standard image. It must not be modified.
func (img *Image) Image() image.Image {
	return img.rgba
}

// Clone returns a copy that shares no memory with img.
func (img *Image) Clone() *Image {
	if img == nil {
		return nil
	}
	rgba := *img.rgba
	rgba.Pix = make([]byte, len(img.rgba.Pix))
	copy(rgba.Pix, img.rgba.Pix)
	return &Image{rgba: &rgba}
}

// Equal is true if both images have identical pixels.
func (img *Image) Equal(other *Image) bool {
	return img.rgba.Rect == other.rgba.Rect && bytes.Equal(img.rgba.Pix, other.rgba.Pix)
}

// PNG encodes img.
func (img *Image) PNG() ([]byte, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(&buf, img.rgba); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Thumbnail scales img to fit in a max by max square, keeping its aspect.
// Images that already fit are returned as is.
func (img *Image) Thumbnail(max uint) image.Image {
	if uint(img.Width()) <= max && uint(img.Height()) <= max {
		return img.rgba
	}
	return resize.Thumbnail(max, max, img.rgba, resize.Bilinear)
}

// ThumbnailPNG encodes Thumbnail(max).
func (img *Image) ThumbnailPNG(max uint) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Thumbnail(max)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
