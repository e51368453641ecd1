// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/SoftbearStudios/cartograph/server/failure"
	"github.com/SoftbearStudios/cartograph/server/guide"
	"github.com/SoftbearStudios/cartograph/server/paint"
	"github.com/SoftbearStudios/cartograph/server/request"
)

// Outcomes of a final generation.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeCanceled = "canceled"
)

// Generation records one final generation.
type Generation struct {
	SessionID string
	Created   time.Time
	Duration  time.Duration
	Prompt    string
	Width     int
	Height    int
	Outcome   string
	Reason    string // of failure, if external
	Error     string

	// Artifact keys, set on success.
	GuideKey string
	PaintKey string
	FinalKey string
}

func newGeneration(sessionID string, req *request.Request, err error) Generation {
	gen := Generation{
		SessionID: sessionID,
		Created:   req.Created(),
		Duration:  time.Since(req.Created()),
		Prompt:    req.Prompt(),
		Width:     req.Width(),
		Height:    req.Height(),
		Outcome:   OutcomeSuccess,
	}

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		gen.Outcome = OutcomeCanceled
	default:
		gen.Outcome = OutcomeFailure
		gen.Error = err.Error()
		if reason, ok := failure.ReasonOf(err); ok {
			gen.Reason = reason.String()
		}
	}
	return gen
}

// awaitFinal reports the result of pending to client and records it.
// The image is served and uploaded as file. It runs on its own goroutine.
func (h *Hub) awaitFinal(client Client, sessionID string, pending *Pending, operation, file string) {
	img, err := pending.Wait(context.Background())
	req := pending.Request()
	gen := newGeneration(sessionID, req, err)

	switch gen.Outcome {
	case OutcomeSuccess:
		atomic.AddInt64(&h.stats.succeeded, 1)
		gen.Width, gen.Height = img.Width(), img.Height()
		h.uploadArtifacts(&gen, req, img, file)
		h.post(client, Final{
			Prompt:    req.Prompt(),
			URL:       sessionURL(sessionID, file),
			Thumbnail: Thumbnail{Image: img},
		})
	case OutcomeCanceled:
		atomic.AddInt64(&h.stats.canceled, 1)
		h.post(client, NewFailure(operation, err))
	default:
		atomic.AddInt64(&h.stats.failed, 1)
		h.post(client, NewFailure(operation, err))
	}

	h.record(gen)
}

func (h *Hub) uploadArtifacts(gen *Generation, req *request.Request, final *guide.Image, file string) {
	prefix := fmt.Sprintf("generations/%s/%d/", gen.SessionID, gen.Created.UnixNano()/int64(time.Millisecond))

	guidePNG, err := req.GuidePNG()
	if err == nil {
		err = h.upload(prefix+"guide.png", guidePNG, &gen.GuideKey)
	}
	if err == nil {
		if layer := req.Paint(); layer != nil && layer.Count() > 0 {
			err = h.upload(prefix+"paint.bin", paint.Encode(layer), &gen.PaintKey)
		}
	}
	if err == nil {
		var finalPNG []byte
		if finalPNG, err = final.PNG(); err == nil {
			err = h.upload(prefix+file, finalPNG, &gen.FinalKey)
		}
	}
	if err != nil {
		log.Println("error uploading artifacts:", err)
	}
}

func (h *Hub) upload(key string, data []byte, dst *string) error {
	if err := h.cloud.UploadArtifact(key, data); err != nil {
		return err
	}
	*dst = key
	return nil
}

func (h *Hub) record(gen Generation) {
	log.Printf("generation %s %s %s %s in %s\n", gen.SessionID, gen.Outcome, gen.Reason, gen.Error, gen.Duration)

	if h.logFile != "" {
		err := AppendLog(h.logFile, []interface{}{
			gen.Created.UnixNano() / int64(time.Millisecond),
			gen.SessionID,
			gen.Outcome,
			gen.Reason,
			gen.Duration,
		})
		if err != nil {
			log.Println("error appending log:", err)
		}
	}

	if err := h.cloud.RecordGeneration(gen); err != nil {
		log.Println("error recording generation:", err)
	}
}
