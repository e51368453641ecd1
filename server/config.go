// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"io"

	"github.com/SoftbearStudios/cartograph/server/terrain"
	"github.com/SoftbearStudios/cartograph/server/terrain/noise"
)

// Config is the JSON file of session defaults.
type Config struct {
	Noise *noise.Params `json:"noise,omitempty"`
	Bands terrain.Bands `json:"bands,omitempty"`
}

// LoadConfig decodes and validates a Config. Missing sections and noise
// fields take defaults.
func LoadConfig(r io.Reader) (*Config, error) {
	params := noise.DefaultParams()
	config := Config{Noise: &params}
	if err := json.NewDecoder(r).Decode(&config); err != nil {
		return nil, err
	}

	if config.Noise == nil {
		params = noise.DefaultParams()
		config.Noise = &params
	}
	if err := config.Noise.Validate(); err != nil {
		return nil, err
	}

	if config.Bands == nil {
		config.Bands = terrain.DefaultBands()
	}
	if err := config.Bands.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Apply sets the defaults of options from config.
func (config *Config) Apply(options *SessionOptions) {
	options.Noise = config.Noise
	options.Bands = config.Bands.Clone()
}
