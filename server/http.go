// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/SoftbearStudios/cartograph/server/paint"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func sessionURL(id, file string) string {
	return "/sessions/" + id + "/" + file
}

// Router serves the status, the socket and per-session exports.
func (h *Hub) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", h.ServeIndex)
	r.Get("/ws", h.ServeSocket)

	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/guide.png", h.serveGuide)
		r.Get("/final.png", h.serveFinal)
		r.Get("/mosaic.png", h.serveMosaic)
		r.Get("/heightmap.png", h.serveHeightmap)
		r.Get("/paint.bin", h.servePaint)
		r.Get("/generations", h.serveGenerations)
	})

	return r
}

func (h *Hub) ServeIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	buf, ok := h.statusJSON.Load().([]byte)
	if ok {
		_, _ = w.Write(buf)
	}
}

func (h *Hub) ServeSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("upgrade error", err)
		return
	}

	h.Register(NewSocketClient(conn))
}

func (h *Hub) session(w http.ResponseWriter, r *http.Request) *Session {
	session := h.Session(chi.URLParam(r, "id"))
	if session == nil {
		http.Error(w, "no such session", http.StatusNotFound)
	}
	return session
}

func (h *Hub) serveGuide(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	if session == nil {
		return
	}
	g := session.Guide()
	if g == nil {
		http.Error(w, "no guide yet", http.StatusNotFound)
		return
	}
	buf, err := g.PNG()
	writeFile(w, "image/png", buf, err)
}

func (h *Hub) serveFinal(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	if session == nil {
		return
	}
	final, _ := session.Final()
	if final == nil {
		http.Error(w, "no final image yet", http.StatusNotFound)
		return
	}
	buf, err := final.PNG()
	writeFile(w, "image/png", buf, err)
}

func (h *Hub) serveMosaic(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	if session == nil {
		return
	}
	m := session.Mosaic()
	if m == nil {
		http.Error(w, "no mosaic yet", http.StatusNotFound)
		return
	}
	buf, err := m.PNG()
	writeFile(w, "image/png", buf, err)
}

func (h *Hub) serveHeightmap(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	if session == nil {
		return
	}
	field := session.Field()
	if field == nil {
		http.Error(w, "no terrain yet", http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	err := png.Encode(&buf, field.Gray())
	writeFile(w, "image/png", buf.Bytes(), err)
}

func (h *Hub) servePaint(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	if session == nil {
		return
	}
	writeFile(w, "application/octet-stream", paint.Encode(session.Paint()), nil)
}

// generationJSON is a Generation as served in a session's history.
type generationJSON struct {
	Created  int64   `json:"created"`  // unix millis
	Duration float64 `json:"duration"` // seconds
	Prompt   string  `json:"prompt"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Outcome  string  `json:"outcome"`
	Reason   string  `json:"reason,omitempty"`
	Error    string  `json:"error,omitempty"`
	GuideKey string  `json:"guideKey,omitempty"`
	PaintKey string  `json:"paintKey,omitempty"`
	FinalKey string  `json:"finalKey,omitempty"`
}

// serveGenerations lists recorded generations, which outlive the session.
func (h *Hub) serveGenerations(w http.ResponseWriter, r *http.Request) {
	generations, err := h.cloud.Generations(chi.URLParam(r, "id"))
	if err != nil {
		log.Println("error reading generations:", err)
		http.Error(w, "could not read generations", http.StatusBadGateway)
		return
	}

	history := make([]generationJSON, len(generations))
	for i, g := range generations {
		history[i] = generationJSON{
			Created:  g.Created.UnixNano() / int64(time.Millisecond),
			Duration: g.Duration.Seconds(),
			Prompt:   g.Prompt,
			Width:    g.Width,
			Height:   g.Height,
			Outcome:  g.Outcome,
			Reason:   g.Reason,
			Error:    g.Error,
			GuideKey: g.GuideKey,
			PaintKey: g.PaintKey,
			FinalKey: g.FinalKey,
		}
	}
	buf, err := json.Marshal(history)
	writeFile(w, "application/json", buf, err)
}

func writeFile(w http.ResponseWriter, contentType string, buf []byte, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf)
}
