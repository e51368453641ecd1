// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"github.com/SoftbearStudios/cartograph/server/failure"
	"github.com/SoftbearStudios/cartograph/server/mosaic"
	"github.com/SoftbearStudios/cartograph/server/paint"
	"github.com/SoftbearStudios/cartograph/server/terrain"
	"github.com/SoftbearStudios/cartograph/server/terrain/noise"
)

// Make sure to register in init function
type (
	// CancelGenerate cancels the pending final generation or mosaic.
	CancelGenerate struct{}

	// ClearPaint unsets every painted cell.
	ClearPaint struct{}

	// Generate starts a final generation with the current guide and paint.
	Generate struct {
		Prompt string `json:"prompt"`
	}

	// InvalidInbound means invalid message type from client (possibly out of date).
	// NOTE: Do not register, otherwise client could send type "invalidInbound"
	InvalidInbound struct {
		messageType messageType
	}

	// Mosaic grows a map larger than one generated image from a seed tile in
	// Corner (topLeft, topRight, bottomLeft or bottomRight). Size defaults to
	// twice the session size.
	Mosaic struct {
		Prompt string `json:"prompt"`
		Corner string `json:"corner"`
		Size   int    `json:"size,omitempty"`
	}

	// Regenerate rebuilds the field, optionally with a new seed.
	Regenerate struct {
		Seed *int64 `json:"seed,omitempty"`
	}

	// SetBands replaces the band table and regenerates.
	SetBands struct {
		Bands terrain.Bands `json:"bands"`
	}

	// SetNoise replaces the noise parameters and regenerates.
	SetNoise struct {
		noise.Params
	}

	// SetPaint replaces the paint layer with run-length encoded cells.
	SetPaint struct {
		Runs []byte `json:"runs"`
	}

	// Stroke paints (or erases) a polyline.
	Stroke struct {
		paint.Stroke
	}
)

func init() {
	registerInbound(
		CancelGenerate{},
		ClearPaint{},
		Generate{},
		Mosaic{},
		Regenerate{},
		SetBands{},
		SetNoise{},
		SetPaint{},
		Stroke{},
	)
}

func (data CancelGenerate) Process(_ *Hub, _ Client, session *Session) {
	session.CancelFinal()
}

func (data ClearPaint) Process(_ *Hub, _ Client, session *Session) {
	session.ClearPaint()
}

func (data Generate) Process(h *Hub, client Client, session *Session) {
	pending, err := session.GenerateFinal(data.Prompt)
	if err != nil {
		client.Send(NewFailure("generate", err))
		return
	}

	client.Send(Generating{Prompt: pending.Request().Prompt()})
	go h.awaitFinal(client, client.Data().ID, pending, "generate", "final.png")
}

func (data Mosaic) Process(h *Hub, client Client, session *Session) {
	corner, ok := mosaic.ParseCorner(data.Corner)
	if !ok {
		client.Send(NewFailure("mosaic", failure.Validation("corner", "unknown %q", data.Corner)))
		return
	}

	pending, err := session.GenerateMosaic(data.Prompt, corner, data.Size, func(done, total int) {
		h.post(client, Progress{Done: done, Total: total})
	})
	if err != nil {
		client.Send(NewFailure("mosaic", err))
		return
	}

	client.Send(Generating{Prompt: pending.Request().Prompt()})
	go h.awaitFinal(client, client.Data().ID, pending, "mosaic", "mosaic.png")
}

func (data Regenerate) Process(h *Hub, client Client, session *Session) {
	if data.Seed != nil {
		params := session.Noise()
		params.Seed = *data.Seed
		if err := session.SetNoise(params); err != nil {
			client.Send(NewFailure("regenerate", err))
			return
		}
	}
	h.regenerate(client, session)
}

func (data SetBands) Process(h *Hub, client Client, session *Session) {
	if err := session.SetBands(data.Bands); err != nil {
		client.Send(NewFailure("setBands", err))
		return
	}
	h.regenerate(client, session)
}

func (data SetNoise) Process(h *Hub, client Client, session *Session) {
	if err := session.SetNoise(data.Params); err != nil {
		client.Send(NewFailure("setNoise", err))
		return
	}
	h.regenerate(client, session)
}

func (data SetPaint) Process(_ *Hub, client Client, session *Session) {
	layer, err := paint.Decode(session.Size(), session.Size(), data.Runs)
	if err == nil {
		err = session.SetPaint(layer)
	}
	if err != nil {
		client.Send(NewFailure("setPaint", err))
	}
}

func (data Stroke) Process(_ *Hub, client Client, session *Session) {
	if _, err := session.Stroke(data.Stroke); err != nil {
		client.Send(NewFailure("stroke", err))
	}
}

func (data InvalidInbound) Process(_ *Hub, _ Client, _ *Session) {}
