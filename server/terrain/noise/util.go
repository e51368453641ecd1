// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package noise

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func clampSigned(f float64) float64 {
	if f < -1 {
		return -1
	}
	if f > 1 {
		return 1
	}
	return f
}

func minMax(buf []float64) (lo, hi float64) {
	if len(buf) == 0 {
		return
	}
	lo, hi = buf[0], buf[0]
	for _, v := range buf[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return
}
