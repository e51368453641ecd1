// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/SoftbearStudios/cartograph/server/failure"
	"github.com/SoftbearStudios/cartograph/server/guide"
	"github.com/SoftbearStudios/cartograph/server/imagegen"
	"github.com/SoftbearStudios/cartograph/server/mosaic"
	"github.com/SoftbearStudios/cartograph/server/paint"
	"github.com/SoftbearStudios/cartograph/server/request"
	"github.com/SoftbearStudios/cartograph/server/terrain"
	"github.com/SoftbearStudios/cartograph/server/terrain/noise"
	"github.com/nfnt/resize"
)

const (
	DefaultTimeout  = 2 * time.Minute
	DefaultRetries  = 3
	DefaultDebounce = 100 * time.Millisecond

	// Mosaic sizes are in multiples of the session size.
	DefaultMosaicScale = 2
	MaxMosaicScale     = 4
)

// SessionOptions configures a Session. Zero fields take defaults.
type SessionOptions struct {
	// Size is the width and height of every raster. Defaults to terrain.Size.
	Size  int
	Noise *noise.Params
	Bands terrain.Bands

	// Generator produces final images. It is wrapped with retries and a timeout.
	Generator imagegen.Generator
	Timeout   time.Duration
	Retries   int

	// Debounce delays the preview after a stroke so bursts build once.
	Debounce time.Duration
	// OnPreview, if set, receives every committed guide. It may be called
	// from any goroutine.
	OnPreview func(*guide.Image)
}

// Session is one user's map: noise and band configuration, the current
// field, the live paint layer and the last good guide and final images.
type Session struct {
	size      int
	generator imagegen.Generator
	debounce  time.Duration
	onPreview func(*guide.Image)

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	params     noise.Params
	bands      terrain.Bands
	field      *terrain.Field
	classified *terrain.Classified
	paint      *paint.Layer
	guide      *guide.Image
	final      *guide.Image
	request    *request.Request // of final
	mosaic     *guide.Image
	job        *Job
	pending    *Pending
	timer      *time.Timer
	closed     bool

	// seq orders guide snapshots. Only a guide newer than committed replaces
	// the current one.
	seq       uint64
	committed uint64
}

// NewSession validates opts and returns a Session with no field yet.
func NewSession(opts SessionOptions) (*Session, error) {
	size := opts.Size
	if size == 0 {
		size = terrain.Size
	}
	if size < 0 {
		return nil, failure.Configuration("size", "%d is negative", size)
	}

	params := noise.DefaultParams()
	if opts.Noise != nil {
		params = *opts.Noise
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	bands := opts.Bands
	if bands == nil {
		bands = terrain.DefaultBands()
	}
	if err := bands.Validate(); err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	var generator imagegen.Generator
	if opts.Generator != nil {
		generator = imagegen.WithTimeout(imagegen.Retrying(opts.Generator, retries), timeout)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		size:      size,
		generator: generator,
		debounce:  debounce,
		onPreview: opts.OnPreview,
		ctx:       ctx,
		cancel:    cancel,
		params:    params,
		bands:     bands.Clone(),
		paint:     paint.NewLayer(size, size),
	}, nil
}

func (s *Session) Size() int {
	return s.size
}

// Noise returns the current noise parameters.
func (s *Session) Noise() noise.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Bands returns a copy of the current band table.
func (s *Session) Bands() terrain.Bands {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bands.Clone()
}

// SetNoise replaces the noise parameters used by the next Regenerate.
func (s *Session) SetNoise(params noise.Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params = params
	s.mu.Unlock()
	return nil
}

// SetBands replaces the band table used by the next Regenerate.
func (s *Session) SetBands(bands terrain.Bands) error {
	if err := bands.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.bands = bands.Clone()
	s.mu.Unlock()
	return nil
}

// Regenerate starts building a new field, classification and guide on a
// background goroutine, canceling any build still in flight. The returned
// Job resolves to the new guide. Until it commits, the previous state stays.
func (s *Session) Regenerate() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &Job{handle: newHandle(s.ctx)}
	if s.closed {
		job.finish(nil, context.Canceled)
		return job
	}
	if s.job != nil {
		s.job.Cancel()
	}
	s.job = job

	go s.build(job, s.params, s.bands, s.paint.Snapshot())
	return job
}

func (s *Session) build(job *Job, params noise.Params, bands terrain.Bands, layer *paint.Layer) {
	ctx := job.ctx

	field, err := noise.Generate(params, s.size, s.size)
	if err != nil {
		job.finish(nil, err)
		return
	}
	if ctx.Err() != nil {
		job.finish(nil, ctx.Err())
		return
	}

	classified, err := terrain.Classify(field, bands)
	if err != nil {
		job.finish(nil, err)
		return
	}
	if ctx.Err() != nil {
		job.finish(nil, ctx.Err())
		return
	}

	g, err := guide.Build(classified, layer)
	if err != nil {
		job.finish(nil, err)
		return
	}

	s.mu.Lock()
	if s.job != job || ctx.Err() != nil {
		s.mu.Unlock()
		job.finish(nil, context.Canceled)
		return
	}
	s.field = field
	s.classified = classified
	s.guide = g
	s.job = nil
	s.seq++
	s.committed = s.seq
	s.mu.Unlock()

	job.finish(g, nil)
	s.notify(g)
}

func (s *Session) notify(g *guide.Image) {
	if s.onPreview != nil {
		s.onPreview(g)
	}
}

// Stroke applies a paint stroke to the live layer and schedules a debounced
// preview. It returns the cells that may have changed.
func (s *Session) Stroke(stroke paint.Stroke) (image.Rectangle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirty, err := s.paint.Apply(stroke)
	if err != nil {
		return dirty, err
	}
	if !dirty.Empty() {
		s.schedulePreview()
	}
	return dirty, nil
}

// SetPaint replaces the live layer with a copy of layer.
func (s *Session) SetPaint(layer *paint.Layer) error {
	if layer.Width() != s.size || layer.Height() != s.size {
		return failure.Validation("paint", "layer is %dx%d, expected %dx%d", layer.Width(), layer.Height(), s.size, s.size)
	}
	s.mu.Lock()
	s.paint = layer.Snapshot()
	s.schedulePreview()
	s.mu.Unlock()
	return nil
}

// ClearPaint unsets every cell of the live layer.
func (s *Session) ClearPaint() {
	s.mu.Lock()
	s.paint.Clear()
	s.schedulePreview()
	s.mu.Unlock()
}

// Paint returns a snapshot of the live layer.
func (s *Session) Paint() *paint.Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paint.Snapshot()
}

// Must hold s.mu.
func (s *Session) schedulePreview() {
	if s.closed || s.classified == nil {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if g, ok, err := s.preview(); err == nil && ok {
			s.notify(g)
		}
	})
}

// Preview synchronously builds the guide from the current classification
// and a snapshot of the live layer.
func (s *Session) Preview() (*guide.Image, error) {
	g, _, err := s.preview()
	return g, err
}

// preview also reports whether the guide was committed. It isn't if a newer
// preview or a regeneration committed first.
func (s *Session) preview() (*guide.Image, bool, error) {
	seq, classified, layer := s.snapshot()
	if classified == nil {
		return nil, false, failure.ErrNoTerrain
	}
	g, err := guide.Build(classified, layer)
	if err != nil {
		return nil, false, err
	}
	return g, s.commit(seq, classified, g), nil
}

func (s *Session) snapshot() (uint64, *terrain.Classified, *paint.Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, s.classified, s.paint.Snapshot()
}

func (s *Session) commit(seq uint64, classified *terrain.Classified, g *guide.Image) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.classified != classified || seq <= s.committed {
		return false
	}
	s.guide = g
	s.committed = seq
	return true
}

// GenerateFinal assembles a request from a fresh guide and starts the
// external call in the background, canceling any call still pending.
// Assembly errors are returned immediately. The previous final image stays
// until the new one succeeds.
func (s *Session) GenerateFinal(prompt string) (*Pending, error) {
	if s.generator == nil {
		return nil, failure.Configuration("generator", "none configured")
	}

	s.mu.Lock()
	classified := s.classified
	layer := s.paint.Snapshot()
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return nil, context.Canceled
	}
	if classified == nil {
		return nil, failure.ErrNoTerrain
	}

	g, err := guide.Build(classified, layer)
	if err != nil {
		return nil, err
	}
	req, err := request.Options{Size: s.size}.Assemble(g, layer, prompt)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := &Pending{handle: newHandle(s.ctx), request: req}
	s.start(p, func(ctx context.Context) (*guide.Image, error) {
		return s.generator.Generate(ctx, req)
	}, func(img *guide.Image) {
		s.final = img
		s.request = req
	})
	return p, nil
}

// GenerateMosaic grows a size by size map from tiles the size of the guide.
// A seed tile is generated for corner from the guide scaled up to size, then
// the rest is filled in tile by tile. progress, if not nil, is called after
// each tile. Like GenerateFinal it replaces any pending call.
func (s *Session) GenerateMosaic(prompt string, corner mosaic.Corner, size int, progress func(done, total int)) (*Pending, error) {
	if s.generator == nil {
		return nil, failure.Configuration("generator", "none configured")
	}
	tile := s.size
	if size == 0 {
		size = DefaultMosaicScale * tile
	}
	if size < tile || size > MaxMosaicScale*tile {
		return nil, failure.Validation("size", "%d is not in [%d, %d]", size, tile, MaxMosaicScale*tile)
	}
	if corner > mosaic.BottomRight {
		return nil, failure.Validation("corner", "unknown %s", corner)
	}

	s.mu.Lock()
	classified := s.classified
	layer := s.paint.Snapshot()
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return nil, context.Canceled
	}
	if classified == nil {
		return nil, failure.ErrNoTerrain
	}

	g, err := guide.Build(classified, layer)
	if err != nil {
		return nil, err
	}
	background := resize.Resize(uint(size), uint(size), g.Image(), resize.Bilinear)

	origin := corner.Origin(size, tile)
	reference, err := mosaic.Crop(background, image.Rectangle{Min: origin, Max: origin.Add(image.Pt(tile, tile))})
	if err != nil {
		return nil, err
	}
	opts := request.Options{Size: tile}
	req, err := opts.Assemble(guide.FromImage(reference), nil, prompt)
	if err != nil {
		return nil, err
	}

	// The prompt was screened once above.
	opts.Screen = func(string) error { return nil }
	fill := func(ctx context.Context, reference, mask *image.NRGBA) (image.Image, error) {
		fillReq, err := opts.AssembleFill(guide.FromImage(reference), mask, req.Prompt())
		if err != nil {
			return nil, err
		}
		patch, err := s.generator.Generate(ctx, fillReq)
		if err != nil {
			return nil, err
		}
		return patch.Image(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := &Pending{handle: newHandle(s.ctx), request: req}
	s.start(p, func(ctx context.Context) (*guide.Image, error) {
		seed, err := s.generator.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		result, err := mosaic.Build(ctx, background, seed.Image(), corner, fill, progress)
		if err != nil {
			return nil, err
		}
		return guide.FromImage(result), nil
	}, func(img *guide.Image) {
		s.mosaic = img
	})
	return p, nil
}

// start runs work for p in the background, canceling any pending call.
// commit is called with s.mu held if p is still current when work succeeds.
// Must hold s.mu.
func (s *Session) start(p *Pending, work func(ctx context.Context) (*guide.Image, error), commit func(*guide.Image)) {
	if s.pending != nil {
		s.pending.Cancel()
	}
	s.pending = p

	go func() {
		img, err := work(p.ctx)
		if err == nil && p.ctx.Err() != nil {
			img, err = nil, p.ctx.Err()
		}

		s.mu.Lock()
		current := s.pending == p
		if current {
			s.pending = nil
			if err == nil {
				commit(img)
			}
		}
		s.mu.Unlock()

		if !current && err == nil {
			err = context.Canceled
			img = nil
		}
		p.finish(img, err)
	}()
}

// CancelFinal cancels the pending final generation or mosaic, if any.
func (s *Session) CancelFinal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.Cancel()
	}
}

// PaintCount returns the number of painted cells.
func (s *Session) PaintCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paint.Count()
}

// Field returns the current elevation field or nil.
func (s *Session) Field() *terrain.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.field
}

// Guide returns the last committed guide or nil.
func (s *Session) Guide() *guide.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guide
}

// Final returns the last successful final image and its request, or nils.
func (s *Session) Final() (*guide.Image, *request.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final, s.request
}

// Mosaic returns the last successful mosaic or nil.
func (s *Session) Mosaic() *guide.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mosaic
}

// Close cancels all background work. The session keeps its last state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.cancel()
}
