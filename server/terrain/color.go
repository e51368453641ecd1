// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package terrain

import (
	"encoding/hex"
	"fmt"
	"image/color"
	"strings"
)

// Color is an opaque 8 bit RGB color.
// It marshals as "#rrggbb".
type Color [3]byte

func RGB(r, g, b byte) Color {
	return Color{r, g, b}
}

func Gray(v byte) Color {
	return RGB(v, v, v)
}

func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: c[0], G: c[1], B: c[2], A: 255}
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "#")
	if len(s) != 6 {
		return fmt.Errorf("color %q is not #rrggbb", text)
	}
	var buf [3]byte
	if _, err := hex.Decode(buf[:], []byte(s)); err != nil {
		return fmt.Errorf("color %q: %w", text, err)
	}
	*c = buf
	return nil
}
