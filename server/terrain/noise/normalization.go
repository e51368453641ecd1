// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package noise

import "fmt"

// Normalization maps the raw fractal sum into [0, 1].
type Normalization uint8

const (
	// Amplitude divides by the sum of octave amplitudes, so the same noise
	// value always maps to the same elevation regardless of the rest of the
	// field.
	Amplitude Normalization = iota
	// Stretch rescales the field so its lowest cell is 0 and highest is 1.
	Stretch
)

func (n Normalization) String() string {
	switch n {
	case Amplitude:
		return "amplitude"
	case Stretch:
		return "stretch"
	}
	return fmt.Sprintf("normalization(%d)", uint8(n))
}

func (n Normalization) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *Normalization) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "amplitude":
		*n = Amplitude
	case "stretch":
		*n = Stretch
	default:
		return fmt.Errorf("unknown normalization %q", text)
	}
	return nil
}

func (n Normalization) apply(buf []float64, maxAmplitude float64) {
	switch n {
	case Amplitude:
		// maxAmplitude >= 1 since the first octave has amplitude 1.
		for i, v := range buf {
			buf[i] = clamp01((v/maxAmplitude + 1) * 0.5)
		}
	case Stretch:
		lo, hi := minMax(buf)
		if hi <= lo {
			for i := range buf {
				buf[i] = 0
			}
			return
		}
		span := hi - lo
		for i, v := range buf {
			buf[i] = clamp01((v - lo) / span)
		}
	}
}
