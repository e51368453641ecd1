// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package mosaic

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/SoftbearStudios/cartograph/server/failure"
)

var (
	green = color.NRGBA{R: 123, G: 222, B: 56, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
)

func solid(size int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestCorner(t *testing.T) {
	const n, m = 20, 5
	for c := TopLeft; c <= BottomRight; c++ {
		if parsed, ok := ParseCorner(c.String()); !ok || parsed != c {
			t.Errorf("%s did not round trip", c)
		}

		canvas := image.NewNRGBA(image.Rect(0, 0, n, n))
		at := c.Origin(n, m)
		Place(canvas, solid(m, green), at)

		if got := canvas.NRGBAAt(at.X+m/2, at.Y+m/2); got != green {
			t.Errorf("%s: inside tile got %v", c, got)
		}
		opposite := image.Pt(n-1, n-1)
		if at.X > 0 {
			opposite.X = 0
		}
		if at.Y > 0 {
			opposite.Y = 0
		}
		if canvas.NRGBAAt(opposite.X, opposite.Y).A != 0 {
			t.Errorf("%s: opposite corner painted", c)
		}
	}

	if _, ok := ParseCorner("middle"); ok {
		t.Error("parsed unknown corner")
	}
}

func TestPositions(t *testing.T) {
	for _, test := range []struct{ size, tile int }{{10, 4}, {11, 4}, {8, 8}, {1024, 256}, {1000, 300}} {
		for c := TopLeft; c <= BottomRight; c++ {
			positions, err := Positions(test.size, test.tile, c)
			if err != nil {
				t.Fatal(err)
			}
			if positions[0] != c.Origin(test.size, test.tile) {
				t.Errorf("%d/%d %s: starts at %v", test.size, test.tile, c, positions[0])
			}

			covered := make([]bool, test.size*test.size)
			for _, p := range positions {
				if p.X < 0 || p.Y < 0 || p.X+test.tile > test.size || p.Y+test.tile > test.size {
					t.Fatalf("%d/%d %s: %v out of bounds", test.size, test.tile, c, p)
				}
				for y := p.Y; y < p.Y+test.tile; y++ {
					for x := p.X; x < p.X+test.tile; x++ {
						covered[y*test.size+x] = true
					}
				}
			}
			for i, ok := range covered {
				if !ok {
					t.Errorf("%d/%d %s: pixel %d, %d not covered", test.size, test.tile, c, i%test.size, i/test.size)
					break
				}
			}
		}
	}

	positions, _ := Positions(10, 4, BottomRight)
	expected := []image.Point{{6, 6}, {4, 6}, {2, 6}, {0, 6}, {6, 4}}
	for i, p := range expected {
		if positions[i] != p {
			t.Errorf("position %d expected %v got %v", i, p, positions[i])
		}
	}

	var val *failure.ValidationError
	if _, err := Positions(4, 5, TopLeft); !errors.As(err, &val) {
		t.Errorf("expected ValidationError got %v", err)
	}
	if _, err := Positions(4, 1, TopLeft); !errors.As(err, &val) {
		t.Errorf("expected ValidationError got %v", err)
	}
}

func TestCrop(t *testing.T) {
	base := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			base.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x + y), A: 255})
		}
	}

	region, err := Crop(base, image.Rect(2, 1, 6, 4))
	if err != nil {
		t.Fatal(err)
	}
	if region.Rect != image.Rect(0, 0, 4, 3) {
		t.Errorf("unexpected bounds %v", region.Rect)
	}
	if region.NRGBAAt(0, 0) != base.NRGBAAt(2, 1) || region.NRGBAAt(3, 2) != base.NRGBAAt(5, 3) {
		t.Error("crop copied the wrong pixels")
	}

	if _, err := Crop(base, image.Rect(5, 5, 10, 10)); err == nil {
		t.Error("expected error cropping outside base")
	}
}

func TestNeedsFill(t *testing.T) {
	img := solid(4, green)
	if NeedsFill(img) {
		t.Error("opaque image needs fill")
	}
	img.SetNRGBA(3, 3, color.NRGBA{})
	if !NeedsFill(img) {
		t.Error("transparent pixel not detected")
	}
}

func TestBuild(t *testing.T) {
	const size, tile = 8, 4
	background := solid(size, green)

	var fills, steps int
	fill := func(ctx context.Context, reference, mask *image.NRGBA) (image.Image, error) {
		fills++
		if !NeedsFill(mask) {
			t.Error("filled a complete tile")
		}
		if NeedsFill(reference) {
			t.Error("reference has holes")
		}
		// Unfilled pixels show the background.
		for i := 3; i < len(mask.Pix); i += 4 {
			if mask.Pix[i] == 0 && reference.Pix[i-2] != green.G {
				t.Error("reference missing background")
				break
			}
		}
		return solid(tile, blue), nil
	}

	var last int
	result, err := Build(context.Background(), background, solid(tile, color.NRGBA{R: 255, A: 255}), BottomRight, fill, func(done, total int) {
		steps++
		last = total
	})
	if err != nil {
		t.Fatal(err)
	}

	if fills != 8 || steps != 9 || last != 9 {
		t.Errorf("expected 8 fills over 9 steps got %d over %d/%d", fills, steps, last)
	}
	if NeedsFill(result) {
		t.Error("mosaic has holes")
	}
	if result.Rect.Size() != image.Pt(size, size) {
		t.Errorf("unexpected size %v", result.Rect)
	}
}

func TestBuild_Errors(t *testing.T) {
	background := solid(8, green)
	seed := solid(4, blue)

	wrongSize := func(ctx context.Context, reference, mask *image.NRGBA) (image.Image, error) {
		return solid(3, blue), nil
	}
	_, err := Build(context.Background(), background, seed, TopLeft, wrongSize, nil)
	if reason, ok := failure.ReasonOf(err); !ok || reason != failure.MalformedResponse {
		t.Errorf("expected malformed response got %v", err)
	}

	failed := errors.New("fake")
	failing := func(ctx context.Context, reference, mask *image.NRGBA) (image.Image, error) {
		return nil, failed
	}
	if _, err = Build(context.Background(), background, seed, TopLeft, failing, nil); err != failed {
		t.Errorf("expected fill error got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err = Build(ctx, background, seed, TopLeft, failing, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled got %v", err)
	}

	var val *failure.ValidationError
	if _, err = Build(context.Background(), solid(2, green), seed, TopLeft, failing, nil); !errors.As(err, &val) {
		t.Errorf("expected ValidationError got %v", err)
	}
}
