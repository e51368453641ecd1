// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Cloud stores artifacts and records outside the process.
type Cloud interface {
	fmt.Stringer
	UpdateServer(sessions int) error
	// UploadArtifact stores data under key. The content type follows the extension.
	UploadArtifact(key string, data []byte) error
	RecordGeneration(generation Generation) error
	// Generations returns the recorded generations of a session, oldest first.
	Generations(sessionID string) ([]Generation, error)
	UpdatePeriod() time.Duration
}

// Offline is a Cloud that stores nothing.
type Offline struct{}

func (offline Offline) String() string {
	return "offline"
}

func (offline Offline) UpdateServer(sessions int) error {
	return nil
}

func (offline Offline) UploadArtifact(key string, data []byte) error {
	return nil
}

func (offline Offline) RecordGeneration(generation Generation) error {
	return nil
}

func (offline Offline) Generations(sessionID string) ([]Generation, error) {
	return nil, nil
}

func (offline Offline) UpdatePeriod() time.Duration {
	return time.Minute
}

// Cloud refreshes the status served at / and the server record.
func (h *Hub) Cloud() {
	sessions := h.clients.Len

	statusJSON, err := json.Marshal(struct {
		Sessions  int   `json:"sessions"`
		Succeeded int64 `json:"succeeded"`
		Failed    int64 `json:"failed"`
	}{
		Sessions:  sessions,
		Succeeded: atomic.LoadInt64(&h.stats.succeeded),
		Failed:    atomic.LoadInt64(&h.stats.failed),
	})

	if err == nil {
		h.statusJSON.Store(statusJSON)
	} else {
		fmt.Println("error marshaling status:", err)
	}

	go func() {
		if err := h.cloud.UpdateServer(sessions); err != nil {
			fmt.Println("Error updating server:", err)
		}
	}()
}
