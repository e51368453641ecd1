// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package imagegen is the boundary to the generative image service.
//
// A Generator turns a request.Request into a final image of the same
// dimensions, or fails with a *failure.ExternalServiceError. Generators are
// composed: OpenAI does one call, Retrying repeats transient failures and
// WithTimeout bounds the whole thing.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SoftbearStudios/cartograph/server/failure"
	"github.com/SoftbearStudios/cartograph/server/guide"
	"github.com/SoftbearStudios/cartograph/server/request"
	"github.com/cenkalti/backoff"
)

// Generator produces a final image for a request.
type Generator interface {
	Generate(ctx context.Context, req *request.Request) (*guide.Image, error)
}

// Func adapts a function to a Generator.
type Func func(ctx context.Context, req *request.Request) (*guide.Image, error)

func (f Func) Generate(ctx context.Context, req *request.Request) (*guide.Image, error) {
	return f(ctx, req)
}

// CheckDimensions fails with reason MalformedResponse unless img matches req.
// Mismatched results are never resized.
func CheckDimensions(req *request.Request, img *guide.Image) error {
	if img == nil {
		return failure.External(failure.MalformedResponse, errors.New("no image"))
	}
	if img.Width() != req.Width() || img.Height() != req.Height() {
		return failure.External(failure.MalformedResponse, fmt.Errorf("image is %dx%d, expected %dx%d",
			img.Width(), img.Height(), req.Width(), req.Height()))
	}
	return nil
}

type retrying struct {
	gen        Generator
	attempts   int
	newBackOff func() backoff.BackOff
}

// Retrying calls gen up to attempts times with exponential backoff. Only
// failures with reason Network are retried.
func Retrying(gen Generator, attempts int) Generator {
	if attempts < 1 {
		attempts = 1
	}
	return &retrying{
		gen:      gen,
		attempts: attempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

func (r *retrying) Generate(ctx context.Context, req *request.Request) (*guide.Image, error) {
	var img *guide.Image
	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), uint64(r.attempts-1)), ctx)

	err := backoff.Retry(func() error {
		var err error
		img, err = r.gen.Generate(ctx, req)
		if err == nil {
			return nil
		}
		if reason, ok := failure.ReasonOf(err); ok && reason == failure.Network && ctx.Err() == nil {
			return err
		}
		return backoff.Permanent(err)
	}, b)

	if err != nil {
		return nil, err
	}
	return img, nil
}

type timeout struct {
	gen     Generator
	timeout time.Duration
}

// WithTimeout bounds each call to gen. A call that runs out of time fails
// with reason Network, even if gen returned the bare context error.
func WithTimeout(gen Generator, d time.Duration) Generator {
	return &timeout{gen: gen, timeout: d}
}

type result struct {
	img *guide.Image
	err error
}

func (t *timeout) Generate(ctx context.Context, req *request.Request) (*guide.Image, error) {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// Buffered so a generator that ignores ctx can still finish and exit.
	results := make(chan result, 1)
	go func() {
		img, err := t.gen.Generate(ctx, req)
		results <- result{img, err}
	}()

	var res result
	select {
	case res = <-results:
	case <-ctx.Done():
		if err := parent.Err(); err != nil {
			return nil, err
		}
		res.err = ctx.Err()
	}

	if res.err != nil {
		if _, ok := failure.ReasonOf(res.err); !ok && errors.Is(res.err, context.DeadlineExceeded) && parent.Err() == nil {
			res.err = failure.External(failure.Network, fmt.Errorf("timed out after %s: %w", t.timeout, res.err))
		}
		return nil, res.err
	}
	if err := CheckDimensions(req, res.img); err != nil {
		return nil, err
	}
	return res.img, nil
}
