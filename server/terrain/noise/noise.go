// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package noise

import (
	"math"

	"github.com/SoftbearStudios/cartograph/server/failure"
	"github.com/SoftbearStudios/cartograph/server/terrain"
	"github.com/aquilax/go-perlin"
)

const (
	// MaxOctaves bounds the work of a single Generate call.
	MaxOctaves = 16

	// Single octave perlin noise stays within +/- sqrt(0.5).
	perlinScale = math.Sqrt2

	// Offsets the second warp lookup so it is uncorrelated with the first.
	warpOffset = 1000
)

// Params tune the fractal noise.
type Params struct {
	Seed          int64         `json:"seed"`
	Octaves       int           `json:"octaves"`
	Frequency     float64       `json:"frequency"`   // of the first octave, per pixel
	Persistence   float64       `json:"persistence"` // amplitude multiplier per octave
	Lacunarity    float64       `json:"lacunarity"`  // frequency multiplier per octave
	WarpAmplitude float64       `json:"warpAmplitude"`
	WarpFrequency float64       `json:"warpFrequency"`
	Normalization Normalization `json:"normalization"`
}

// DefaultParams gives continents a few hundred pixels across on a 1024 map.
func DefaultParams() Params {
	return Params{
		Seed:          42,
		Octaves:       6,
		Frequency:     0.005,
		Persistence:   0.5,
		Lacunarity:    2,
		WarpAmplitude: 0.1,
		WarpFrequency: 0.02,
		Normalization: Amplitude,
	}
}

// Validate returns a *failure.ConfigurationError for the first bad parameter.
func (p Params) Validate() error {
	if p.Octaves < 1 || p.Octaves > MaxOctaves {
		return failure.Configuration("octaves", "%d is not in [1, %d]", p.Octaves, MaxOctaves)
	}
	if !(p.Frequency > 0) || math.IsInf(p.Frequency, 0) {
		return failure.Configuration("frequency", "%g is not positive", p.Frequency)
	}
	if !(p.Persistence > 0 && p.Persistence <= 1) {
		return failure.Configuration("persistence", "%g is not in (0, 1]", p.Persistence)
	}
	if !(p.Lacunarity >= 1) || math.IsInf(p.Lacunarity, 0) {
		return failure.Configuration("lacunarity", "%g is less than 1", p.Lacunarity)
	}
	if !(p.WarpAmplitude >= 0) || math.IsInf(p.WarpAmplitude, 0) {
		return failure.Configuration("warpAmplitude", "%g is negative", p.WarpAmplitude)
	}
	if p.WarpAmplitude > 0 && (!(p.WarpFrequency > 0) || math.IsInf(p.WarpFrequency, 0)) {
		return failure.Configuration("warpFrequency", "%g is not positive", p.WarpFrequency)
	}
	if p.Normalization > Stretch {
		return failure.Configuration("normalization", "unknown mode %d", p.Normalization)
	}
	return nil
}

// Generator generates a heightmap using layered perlin noise.
type Generator struct {
	params Params
	layers []*perlin.Perlin
	warp   *perlin.Perlin // nil if warping is disabled

	// Sum of every octave's amplitude.
	maxAmplitude float64
}

// New creates a Generator. Invalid params fail with a *failure.ConfigurationError.
func New(params Params) (*Generator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	g := &Generator{
		params: params,
		layers: make([]*perlin.Perlin, params.Octaves),
	}

	amplitude := 1.0
	for i := range g.layers {
		// One octave each so frequency and amplitude are under our control.
		g.layers[i] = perlin.NewPerlin(2, 2, 1, params.Seed+int64(i))
		g.maxAmplitude += amplitude
		amplitude *= params.Persistence
	}

	if params.WarpAmplitude > 0 {
		g.warp = perlin.NewPerlin(2, 2, 1, params.Seed-1)
	}

	return g, nil
}

// Generate is shorthand for New(params) followed by Generator.Generate.
func Generate(params Params, width, height int) (*terrain.Field, error) {
	g, err := New(params)
	if err != nil {
		return nil, err
	}
	return g.Generate(width, height)
}

// Generate returns a new width by height field. Identical params and size
// always give a bit-identical field.
func (g *Generator) Generate(width, height int) (*terrain.Field, error) {
	if width <= 0 || height <= 0 {
		return nil, failure.Configuration("size", "%dx%d is not a valid field size", width, height)
	}

	buf := make([]float64, width*height)
	for j := 0; j < height; j++ {
		for i := 0; i < width; i++ {
			buf[i+j*width] = g.sample(float64(i), float64(j))
		}
	}

	g.params.Normalization.apply(buf, g.maxAmplitude)
	return terrain.NewField(width, height, buf)
}

// sample returns the raw fractal sum at pixel x, y, within +/- maxAmplitude.
func (g *Generator) sample(x, y float64) float64 {
	x *= g.params.Frequency
	y *= g.params.Frequency

	if g.warp != nil {
		wf := g.params.WarpFrequency
		dx := g.warp.Noise2D(x*wf, y*wf) * perlinScale
		dy := g.warp.Noise2D((x+warpOffset)*wf, (y+warpOffset)*wf) * perlinScale
		x += dx * g.params.WarpAmplitude
		y += dy * g.params.WarpAmplitude
	}

	var total float64
	amplitude := 1.0
	frequency := 1.0
	for _, layer := range g.layers {
		total += clampSigned(layer.Noise2D(x*frequency, y*frequency)*perlinScale) * amplitude
		amplitude *= g.params.Persistence
		frequency *= g.params.Lacunarity
	}
	return total
}
