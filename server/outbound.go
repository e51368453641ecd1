// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"

	"github.com/SoftbearStudios/cartograph/server/failure"
	"github.com/SoftbearStudios/cartograph/server/guide"
	"github.com/SoftbearStudios/cartograph/server/terrain"
	"github.com/SoftbearStudios/cartograph/server/terrain/noise"
)

// ThumbnailSize is the default bound of thumbnails sent over the socket.
const ThumbnailSize = 256

type (
	// Failure reports an operation that did not complete.
	Failure struct {
		Operation string          `json:"operation"`
		Kind      string          `json:"kind"`
		Reason    *failure.Reason `json:"reason,omitempty"` // only for kind "external"
		Message   string          `json:"message"`
	}

	// Final is a successful final generation. The full image is at URL.
	Final struct {
		Prompt    string    `json:"prompt"`
		URL       string    `json:"url"`
		Thumbnail Thumbnail `json:"thumbnail,omitempty"`
	}

	// Generating means a final generation has started.
	Generating struct {
		Prompt string `json:"prompt"`
	}

	// Progress counts the tiles of a mosaic placed so far.
	Progress struct {
		Done  int `json:"done"`
		Total int `json:"total"`
	}

	// Preview is a newly committed guide. The full image is at URL.
	Preview struct {
		URL       string    `json:"url"`
		Thumbnail Thumbnail `json:"thumbnail,omitempty"`
	}

	// Welcome is the first message of a session.
	Welcome struct {
		SessionID string        `json:"sessionID"`
		Size      int           `json:"size"`
		Noise     noise.Params  `json:"noise"`
		Bands     terrain.Bands `json:"bands"`
	}

	// Thumbnail is marshaled as a PNG data URL of Image scaled to fit in Size.
	Thumbnail struct {
		Image *guide.Image
		Size  uint
	}
)

func init() {
	registerOutbound(
		Failure{},
		Final{},
		Generating{},
		Preview{},
		Progress{},
		Welcome{},
	)
}

func (thumbnail Thumbnail) size() uint {
	if thumbnail.Size == 0 {
		return ThumbnailSize
	}
	return thumbnail.Size
}

// NewFailure describes err for the client.
func NewFailure(operation string, err error) Failure {
	f := Failure{
		Operation: operation,
		Kind:      failure.Kind(err),
		Message:   err.Error(),
	}
	if errors.Is(err, context.Canceled) {
		f.Kind = "canceled"
	}
	if reason, ok := failure.ReasonOf(err); ok {
		f.Reason = &reason
	}
	return f
}
