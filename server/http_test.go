// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SoftbearStudios/cartograph/server/guide"
	"github.com/SoftbearStudios/cartograph/server/paint"
)

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRouter(t *testing.T) {
	hub := testHub(t, nil)
	client, w := welcome(t, hub)
	router := hub.Router()

	res := get(t, router, "/")
	if res.Code != http.StatusOK || res.Header().Get("Content-Type") != "application/json" {
		t.Errorf("status: %d %s", res.Code, res.Header().Get("Content-Type"))
	}

	res = get(t, router, sessionURL(w.SessionID, "guide.png"))
	if res.Code != http.StatusOK || res.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("guide: %d %s", res.Code, res.Body)
	}
	g, err := guide.DecodePNG(res.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !g.Equal(hub.Session(w.SessionID).Guide()) {
		t.Error("served guide differs")
	}

	res = get(t, router, sessionURL(w.SessionID, "heightmap.png"))
	if res.Code != http.StatusOK {
		t.Fatalf("heightmap: %d", res.Code)
	}
	heightmap, err := png.Decode(bytes.NewReader(res.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if heightmap.Bounds().Dx() != testSize {
		t.Errorf("unexpected heightmap bounds %v", heightmap.Bounds())
	}

	res = get(t, router, sessionURL(w.SessionID, "paint.bin"))
	if res.Code != http.StatusOK {
		t.Fatalf("paint: %d", res.Code)
	}
	layer, err := paint.Decode(testSize, testSize, res.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if layer.Count() != 0 {
		t.Error("unexpected paint")
	}

	// No final image until one is generated.
	if res = get(t, router, sessionURL(w.SessionID, "final.png")); res.Code != http.StatusNotFound {
		t.Errorf("final: %d", res.Code)
	}
	hub.inbound <- SignedInbound{Client: client, inbound: Generate{Prompt: "ink"}}
	client.next(t, false)
	if _, ok := client.next(t, false).(Final); !ok {
		t.Fatal("expected final")
	}
	if res = get(t, router, sessionURL(w.SessionID, "final.png")); res.Code != http.StatusOK {
		t.Errorf("final: %d", res.Code)
	}

	if res = get(t, router, sessionURL(w.SessionID, "mosaic.png")); res.Code != http.StatusNotFound {
		t.Errorf("mosaic: %d", res.Code)
	}

	for _, file := range []string{"guide.png", "final.png", "mosaic.png", "heightmap.png", "paint.bin"} {
		if res = get(t, router, sessionURL("missing", file)); res.Code != http.StatusNotFound {
			t.Errorf("missing %s: %d", file, res.Code)
		}
	}
}

func TestRouter_Generations(t *testing.T) {
	cloud := &memoryCloud{}
	hub := testHub(t, cloud)
	router := hub.Router()

	res := get(t, router, sessionURL("missing", "generations"))
	if res.Code != http.StatusOK || strings.TrimSpace(res.Body.String()) != "[]" {
		t.Errorf("empty history: %d %s", res.Code, res.Body)
	}

	created := time.Unix(1000, 0)
	_ = cloud.RecordGeneration(Generation{
		SessionID: "s",
		Created:   created,
		Duration:  2 * time.Second,
		Prompt:    "ink",
		Outcome:   OutcomeFailure,
		Reason:    "policyRejected",
	})
	_ = cloud.RecordGeneration(Generation{SessionID: "other", Created: created, Outcome: OutcomeSuccess})

	res = get(t, router, sessionURL("s", "generations"))
	if res.Code != http.StatusOK || res.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("history: %d %s", res.Code, res.Body)
	}
	var history []generationJSON
	if err := json.Unmarshal(res.Body.Bytes(), &history); err != nil {
		t.Fatal(err)
	}
	expected := generationJSON{Created: 1000000, Duration: 2, Prompt: "ink", Outcome: OutcomeFailure, Reason: "policyRejected"}
	if len(history) != 1 || history[0] != expected {
		t.Errorf("unexpected history %+v", history)
	}
}
