// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package terrain

import (
	"errors"
	"math"
	"testing"

	"github.com/SoftbearStudios/cartograph/server/failure"
)

func threeBands() Bands {
	return Bands{
		{Name: "water", Lower: 0, Upper: 0.3, Color: RGB(0, 0, 255)},
		{Name: "land", Lower: 0.3, Upper: 0.7, Color: RGB(0, 255, 0)},
		{Name: "mountain", Lower: 0.7, Upper: 1, Color: Gray(128)},
	}
}

func TestBands_Validate(t *testing.T) {
	if err := DefaultBands().Validate(); err != nil {
		t.Error("default bands:", err)
	}
	if err := threeBands().Validate(); err != nil {
		t.Error("three bands:", err)
	}

	tests := []struct {
		name  string
		bands Bands
	}{
		{"empty", Bands{}},
		{"gap", Bands{{Name: "a", Lower: 0, Upper: 0.4}, {Name: "b", Lower: 0.5, Upper: 1}}},
		{"overlap", Bands{{Name: "a", Lower: 0, Upper: 0.6}, {Name: "b", Lower: 0.5, Upper: 1}}},
		{"not from zero", Bands{{Name: "a", Lower: 0.1, Upper: 1}}},
		{"not to one", Bands{{Name: "a", Lower: 0, Upper: 0.9}}},
		{"empty range", Bands{{Name: "a", Lower: 0, Upper: 0.5}, {Name: "b", Lower: 0.5, Upper: 0.5}, {Name: "c", Lower: 0.5, Upper: 1}}},
		{"descending", Bands{{Name: "a", Lower: 0, Upper: 0.5}, {Name: "b", Lower: 0.5, Upper: 0.2}, {Name: "c", Lower: 0.2, Upper: 1}}},
		{"nan", Bands{{Name: "a", Lower: 0, Upper: math.NaN()}, {Name: "b", Lower: math.NaN(), Upper: 1}}},
		{"no name", Bands{{Lower: 0, Upper: 1}}},
	}

	for _, test := range tests {
		err := test.bands.Validate()
		var conf *failure.ConfigurationError
		if !errors.As(err, &conf) {
			t.Errorf("%s: expected ConfigurationError, got %v", test.name, err)
		}
	}
}

func TestBands_Index(t *testing.T) {
	bands := threeBands()
	tests := []struct {
		value float64
		name  string
	}{
		{0, "water"},
		{0.299, "water"},
		{0.3, "land"},
		{0.5, "land"},
		{0.7, "mountain"},
		{0.99, "mountain"},
		{1, "mountain"},
	}

	for _, test := range tests {
		if got := bands[bands.Index(test.value)].Name; got != test.name {
			t.Errorf("Index(%g) expected %s got %s", test.value, test.name, got)
		}
	}
}

func TestClassify(t *testing.T) {
	values := []float64{0, 0.3, 0.7, 1, 0.29, 0.69, 0.5, 0.95}
	field, err := NewField(4, 2, values)
	if err != nil {
		t.Fatal(err)
	}

	bands := threeBands()
	c, err := Classify(field, bands)
	if err != nil {
		t.Fatal(err)
	}

	expected := []string{"water", "land", "mountain", "mountain", "water", "land", "land", "mountain"}
	for i, name := range expected {
		x, y := i%4, i/4
		if got := c.At(x, y).Name; got != name {
			t.Errorf("At(%d, %d) = %g expected %s got %s", x, y, values[i], name, got)
		}
	}

	if c.Color(2, 0) != Gray(128) {
		t.Errorf("expected mountain color, got %s", c.Color(2, 0))
	}

	// Classification must not alias the caller's bands.
	bands[0].Name = "changed"
	if c.At(0, 0).Name != "water" {
		t.Error("Classified shares memory with its bands argument")
	}

	counts := c.Counts()
	if counts[0] != 2 || counts[1] != 3 || counts[2] != 3 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestClassify_EveryValue(t *testing.T) {
	const n = 10001
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i) / (n - 1)
	}
	field, _ := NewField(n, 1, values)

	bands := DefaultBands()
	c, err := Classify(field, bands)
	if err != nil {
		t.Fatal(err)
	}

	for i, v := range values {
		band := c.At(i, 0)
		inside := v >= band.Lower && (v < band.Upper || (band.Upper == 1 && v == 1))
		if !inside {
			t.Errorf("%g classified as %s [%g, %g)", v, band.Name, band.Lower, band.Upper)
		}
	}
}

func TestClassify_InvalidBands(t *testing.T) {
	field, _ := NewField(1, 1, []float64{0.5})
	_, err := Classify(field, Bands{{Name: "half", Lower: 0, Upper: 0.5}})
	var conf *failure.ConfigurationError
	if !errors.As(err, &conf) {
		t.Errorf("expected ConfigurationError got %v", err)
	}
}
