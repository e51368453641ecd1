// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"

	"github.com/SoftbearStudios/cartograph/server/guide"
	"github.com/SoftbearStudios/cartograph/server/request"
)

// handle is a cancelable background result.
type handle struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	image  *guide.Image
	err    error
}

func newHandle(parent context.Context) handle {
	ctx, cancel := context.WithCancel(parent)
	return handle{ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Must be called exactly once.
func (h *handle) finish(img *guide.Image, err error) {
	h.image, h.err = img, err
	h.cancel()
	close(h.done)
}

// Cancel asks the work to stop. It is a no-op once the result is ready.
func (h *handle) Cancel() {
	h.cancel()
}

// Done is closed when the result is ready.
func (h *handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the result is ready or ctx is done.
func (h *handle) Wait(ctx context.Context) (*guide.Image, error) {
	select {
	case <-h.done:
		return h.image, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Job is a background regeneration. It resolves to the new guide.
type Job struct {
	handle
}

// Pending is a background final generation. It resolves to the final image
// or an error such as a *failure.ExternalServiceError.
type Pending struct {
	handle
	request *request.Request
}

// Request returns the immutable request being generated.
func (p *Pending) Request() *request.Request {
	return p.request
}
