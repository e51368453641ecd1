// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package db

import (
	"net"
)

// Generation is keyed by session and creation time (unix millis).
type Generation struct {
	SessionID string  `dynamo:"sessionID"`
	Created   int64   `dynamo:"created"`
	Duration  float64 `dynamo:"duration"` // seconds
	Prompt    string  `dynamo:"prompt"`
	Width     int     `dynamo:"width"`
	Height    int     `dynamo:"height"`
	Outcome   string  `dynamo:"outcome"`
	Reason    string  `dynamo:"reason,omitempty"`
	Error     string  `dynamo:"error,omitempty"`
	GuideKey  string  `dynamo:"guideKey,omitempty"`
	PaintKey  string  `dynamo:"paintKey,omitempty"`
	FinalKey  string  `dynamo:"finalKey,omitempty"`
	TTL       int64   `dynamo:"ttl,omitempty"`
}

type Server struct {
	Region   string `dynamo:"region"`
	Slot     int    `dynamo:"slot"`
	IP       net.IP `dynamo:"ip"`
	Sessions int    `dynamo:"sessions"`
	TTL      int64  `dynamo:"ttl,omitempty"`
}
