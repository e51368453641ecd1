// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command render_cmd writes the guide image (and optionally the heightmap)
// for a seed without starting a server.
package main

import (
	"flag"
	"image"
	"image/png"
	"io/ioutil"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/SoftbearStudios/cartograph/server"
	"github.com/SoftbearStudios/cartograph/server/guide"
	"github.com/SoftbearStudios/cartograph/server/paint"
	"github.com/SoftbearStudios/cartograph/server/terrain"
	"github.com/SoftbearStudios/cartograph/server/terrain/noise"
)

func main() {
	var (
		configFile string
		cpuProfile string
		heightmap  string
		out        string
		paintFile  string
		seed       int64
		size       int
		thumbnail  uint
	)

	flag.StringVar(&configFile, "config", "", "JSON file of noise parameters and bands")
	flag.StringVar(&cpuProfile, "cpuprofile", "", "write cpu profile to `file`")
	flag.StringVar(&heightmap, "heightmap", "", "also write the grayscale heightmap to `file`")
	flag.StringVar(&out, "out", "out.png", "guide image `file`")
	flag.StringVar(&paintFile, "paint", "", "paint.bin `file` to draw over the terrain")
	flag.Int64Var(&seed, "seed", 0, "noise seed (default from config)")
	flag.IntVar(&size, "size", terrain.Size, "width and height in pixels")
	flag.UintVar(&thumbnail, "thumbnail", 0, "scale the guide to fit in this many pixels")
	flag.Parse()

	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	params := noise.DefaultParams()
	bands := terrain.DefaultBands()
	if configFile != "" {
		f, err := os.Open(configFile)
		if err != nil {
			log.Fatal(err)
		}
		config, err := server.LoadConfig(f)
		f.Close()
		if err != nil {
			log.Fatal(err)
		}
		params, bands = *config.Noise, config.Bands
	}
	if passed(flag.CommandLine, "seed") {
		params.Seed = seed
	}

	var layer *paint.Layer
	if paintFile != "" {
		buf, err := ioutil.ReadFile(paintFile)
		if err != nil {
			log.Fatal(err)
		}
		if layer, err = paint.Decode(size, size, buf); err != nil {
			log.Fatal(err)
		}
	}

	run(params, bands, layer, size, thumbnail, out, heightmap)
}

// passed reports whether the named flag was set on the command line.
func passed(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func run(params noise.Params, bands terrain.Bands, layer *paint.Layer, size int, thumbnail uint, out, heightmap string) {
	start := time.Now()

	field, err := noise.Generate(params, size, size)
	if err != nil {
		log.Fatal(err)
	}
	classified, err := terrain.Classify(field, bands)
	if err != nil {
		log.Fatal(err)
	}
	g, err := guide.Build(classified, layer)
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("rendered %dx%d seed %d in %s\n", size, size, params.Seed, time.Since(start))

	var img image.Image = g.Image()
	if thumbnail > 0 {
		img = g.Thumbnail(thumbnail)
	}
	writePNG(out, img)

	if heightmap != "" {
		writePNG(heightmap, field.Gray())
	}
}

func writePNG(name string, img image.Image) {
	file, err := os.Create(name)
	if err != nil {
		log.Fatal(err)
	}
	defer file.Close()

	if err = png.Encode(file, img); err != nil {
		log.Fatal(err)
	}
}
