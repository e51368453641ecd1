// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package request assembles the immutable unit handed to the image generator.
package request

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/SoftbearStudios/cartograph/server/failure"
	"github.com/SoftbearStudios/cartograph/server/guide"
	"github.com/SoftbearStudios/cartograph/server/paint"
	"github.com/finnbear/moderation"
)

// MaxPromptLength is in bytes, after trimming.
const MaxPromptLength = 4000

// Request is a guide image, paint and prompt. It never changes after Assemble.
type Request struct {
	guide   *guide.Image
	paint   *paint.Layer // nil if none
	prompt  string
	mask    []byte // PNG, only for fills
	created time.Time

	pngOnce sync.Once
	png     []byte
	pngErr  error
}

// Options controls what Assemble accepts. The zero value accepts any size.
type Options struct {
	// Size, if non-zero, is the required width and height of the guide.
	Size int
	// Screen rejects a prompt by returning an error. Defaults to Moderate.
	Screen func(prompt string) error
}

// Assemble is Options{}.Assemble.
func Assemble(g *guide.Image, layer *paint.Layer, prompt string) (*Request, error) {
	return Options{}.Assemble(g, layer, prompt)
}

// Assemble validates its arguments and copies g and layer so that later
// strokes or regeneration cannot alter the returned Request. layer may be nil.
func (opts Options) Assemble(g *guide.Image, layer *paint.Layer, prompt string) (*Request, error) {
	if g == nil {
		return nil, failure.ErrNoTerrain
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, failure.Validation("prompt", "empty")
	}
	if len(prompt) > MaxPromptLength {
		return nil, failure.Validation("prompt", "longer than %d bytes", MaxPromptLength)
	}
	if !utf8.ValidString(prompt) {
		return nil, failure.Validation("prompt", "invalid utf-8")
	}

	if opts.Size != 0 && (g.Width() != opts.Size || g.Height() != opts.Size) {
		return nil, failure.Validation("guide", "is %dx%d, expected %dx%d", g.Width(), g.Height(), opts.Size, opts.Size)
	}
	if layer != nil && (layer.Width() != g.Width() || layer.Height() != g.Height()) {
		return nil, failure.Validation("paint", "layer is %dx%d but guide is %dx%d",
			layer.Width(), layer.Height(), g.Width(), g.Height())
	}

	screen := opts.Screen
	if screen == nil {
		screen = Moderate
	}
	if err := screen(prompt); err != nil {
		return nil, err
	}

	return &Request{
		guide:   g.Clone(),
		paint:   layer.Snapshot(),
		prompt:  prompt,
		created: time.Now(),
	}, nil
}

// AssembleFill assembles a request to fill the transparent pixels of mask,
// guided by reference. mask must be the size of reference.
func (opts Options) AssembleFill(reference *guide.Image, mask image.Image, prompt string) (*Request, error) {
	r, err := opts.Assemble(reference, nil, prompt)
	if err != nil {
		return nil, err
	}
	if mask == nil || mask.Bounds().Size() != reference.Bounds().Size() {
		return nil, failure.Validation("mask", "does not match %dx%d reference", reference.Width(), reference.Height())
	}

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err = encoder.Encode(&buf, mask); err != nil {
		return nil, err
	}
	r.mask = buf.Bytes()
	return r, nil
}

// Moderate rejects severely inappropriate prompts.
func Moderate(prompt string) error {
	result := moderation.Scan(prompt)
	if result.Is(moderation.Inappropriate & moderation.Severe) {
		return failure.Validation("prompt", "inappropriate")
	}
	return nil
}

// Guide returns the guide snapshot. It must not be modified.
func (r *Request) Guide() *guide.Image {
	return r.guide
}

// Paint returns a copy of the paint snapshot, or nil if there was none.
func (r *Request) Paint() *paint.Layer {
	return r.paint.Snapshot()
}

// Prompt returns the trimmed prompt.
func (r *Request) Prompt() string {
	return r.prompt
}

func (r *Request) Created() time.Time {
	return r.created
}

func (r *Request) Width() int {
	return r.guide.Width()
}

func (r *Request) Height() int {
	return r.guide.Height()
}

// MaskPNG returns the encoded mask of a fill request, or nil.
func (r *Request) MaskPNG() []byte {
	return r.mask
}

// GuidePNG returns the encoded guide, encoding it at most once.
func (r *Request) GuidePNG() ([]byte, error) {
	r.pngOnce.Do(func() {
		r.png, r.pngErr = r.guide.PNG()
	})
	return r.png, r.pngErr
}
