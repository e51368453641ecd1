// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package terrain

import (
	"math"
	"sort"

	"github.com/SoftbearStudios/cartograph/server/failure"
)

// MaxBands is how many bands fit in a Classified cell.
const MaxBands = 256

// Band is a named elevation range [Lower, Upper) drawn in one color.
// The last band of a set also contains its Upper bound.
type Band struct {
	Name  string  `json:"name"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Color Color   `json:"color"`
}

// Bands is an ordered partition of [0, 1].
type Bands []Band

// DefaultBands goes from deep water to snow.
func DefaultBands() Bands {
	return Bands{
		{Name: "deep water", Lower: 0.00, Upper: 0.30, Color: RGB(0, 0, 128)},
		{Name: "shallow water", Lower: 0.30, Upper: 0.40, Color: RGB(64, 160, 224)},
		{Name: "sand", Lower: 0.40, Upper: 0.45, Color: RGB(238, 214, 175)},
		{Name: "grassland", Lower: 0.45, Upper: 0.60, Color: RGB(120, 200, 80)},
		{Name: "forest", Lower: 0.60, Upper: 0.75, Color: RGB(16, 128, 16)},
		{Name: "mountain", Lower: 0.75, Upper: 0.90, Color: RGB(128, 128, 128)},
		{Name: "snow", Lower: 0.90, Upper: 1.00, Color: Gray(255)},
	}
}

// Validate checks that bands partition [0, 1] in ascending order with no
// gaps or overlaps.
func (bands Bands) Validate() error {
	if len(bands) == 0 {
		return failure.Configuration("bands", "at least one band is required")
	}
	if len(bands) > MaxBands {
		return failure.Configuration("bands", "%d bands exceeds the maximum of %d", len(bands), MaxBands)
	}

	for i, band := range bands {
		if band.Name == "" {
			return failure.Configuration("bands", "band %d has no name", i)
		}
		if !finite(band.Lower) || !finite(band.Upper) {
			return failure.Configuration("bands", "band %q has a non-finite threshold", band.Name)
		}
		if band.Lower >= band.Upper {
			return failure.Configuration("bands", "band %q lower %g is not below upper %g", band.Name, band.Lower, band.Upper)
		}

		if i == 0 {
			if band.Lower != 0 {
				return failure.Configuration("bands", "first band %q must start at 0, not %g", band.Name, band.Lower)
			}
			continue
		}

		previous := bands[i-1]
		switch {
		case band.Lower > previous.Upper:
			return failure.Configuration("bands", "gap between %q and %q (%g to %g)", previous.Name, band.Name, previous.Upper, band.Lower)
		case band.Lower < previous.Upper:
			return failure.Configuration("bands", "%q overlaps %q (%g < %g)", band.Name, previous.Name, band.Lower, previous.Upper)
		}
	}

	if last := bands[len(bands)-1]; last.Upper != 1 {
		return failure.Configuration("bands", "last band %q must end at 1, not %g", last.Name, last.Upper)
	}
	return nil
}

// Index returns the index of the band containing v.
// A value equal to a threshold belongs to the band it is the lower bound of,
// except 1 which belongs to the last band. bands must be valid.
func (bands Bands) Index(v float64) int {
	i := sort.Search(len(bands), func(i int) bool {
		return bands[i].Upper > v
	})
	if i == len(bands) {
		return len(bands) - 1
	}
	return i
}

// Clone returns a copy that does not share memory with bands.
func (bands Bands) Clone() Bands {
	if bands == nil {
		return nil
	}
	clone := make(Bands, len(bands))
	copy(clone, bands)
	return clone
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
