// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"log"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SoftbearStudios/cartograph/server/guide"
	"github.com/gofrs/uuid"
)

const debugPeriod = time.Second * 15

// HubOptions configures a Hub.
type HubOptions struct {
	Cloud Cloud
	// Session is the template for every client's session. OnPreview is
	// replaced per client.
	Session SessionOptions
	// LogFile, if set, receives a CSV line per final generation.
	LogFile string
}

// Hub maintains the set of active clients and their sessions.
type Hub struct {
	cloud          Cloud
	sessionOptions SessionOptions
	logFile        string

	// Only accessed by hub goroutine.
	clients ClientList
	// funcBenches are benchmarks of inbound processing.
	funcBenches []funcBench

	// Sessions by ID, read by HTTP handlers.
	mu       sync.RWMutex
	sessions map[string]*Session

	// Things that are served atomically by HTTP
	statusJSON atomic.Value

	// Updated by generation goroutines.
	stats generationStats

	// Inbound channels
	inbound    chan SignedInbound
	outbound   chan SignedOutbound
	register   chan Client
	unregister chan Client
	stop       chan struct{}
	stopOnce   sync.Once

	// Timer based events
	cloudTicker *time.Ticker
	debugTicker *time.Ticker
}

type generationStats struct {
	succeeded int64
	failed    int64
	canceled  int64
}

func NewHub(options HubOptions) *Hub {
	if options.Cloud == nil {
		options.Cloud = Offline{}
	}

	return &Hub{
		cloud:          options.Cloud,
		sessionOptions: options.Session,
		logFile:        options.LogFile,
		sessions:       make(map[string]*Session),
		inbound:        make(chan SignedInbound, 64),
		outbound:       make(chan SignedOutbound, 64),
		register:       make(chan Client, 8),
		unregister:     make(chan Client, 16),
		stop:           make(chan struct{}),
		cloudTicker:    time.NewTicker(options.Cloud.UpdatePeriod()),
		debugTicker:    time.NewTicker(debugPeriod),
	}
}

// Run processes hub events until Stop is called.
func (h *Hub) Run() {
	defer func() {
		h.cloudTicker.Stop()
		h.debugTicker.Stop()

		for client := h.clients.First; client != nil; client = h.clients.Remove(client) {
			h.close(client)
		}
		log.Println("hub stopped")
	}()

	h.Cloud()

	for {
		select {
		case client := <-h.register:
			h.open(client)
		case client := <-h.unregister:
			if client.Data().Hub != h {
				break
			}
			h.close(client)
			h.clients.Remove(client)
		case in := <-h.inbound:
			// Read all messages currently in the channel
			n := len(h.inbound)

			for {
				// If not same hub the message is old
				data := in.Client.Data()
				if h == data.Hub {
					h.process(in, data.Session)
				}

				if n--; n <= 0 {
					break
				}

				in = <-h.inbound
			}
		case out := <-h.outbound:
			if out.Client.Data().Hub == h {
				out.Client.Send(out.outbound)
			}
		case <-h.debugTicker.C:
			h.Debug()
		case <-h.cloudTicker.C:
			h.Cloud()
		case <-h.stop:
			return
		}
	}
}

// Stop makes Run return and closes every client. It may be called more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

// Register adds a client. It blocks until the hub accepts it or stops.
func (h *Hub) Register(client Client) {
	select {
	case h.register <- client:
	case <-h.stop:
	}
}

// Session returns the session with the given ID or nil.
func (h *Hub) Session(id string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[id]
}

func (h *Hub) process(in SignedInbound, session *Session) {
	defer h.timeFunction(reflect.TypeOf(in.inbound).Name(), time.Now())
	in.Process(h, in.Client, session)
}

func (h *Hub) open(client Client) {
	id, err := uuid.NewV4()
	if err != nil {
		log.Println("session id error:", err)
		client.Destroy()
		return
	}

	options := h.sessionOptions
	options.OnPreview = func(g *guide.Image) {
		h.post(client, Preview{URL: sessionURL(id.String(), "guide.png"), Thumbnail: Thumbnail{Image: g}})
	}

	session, err := NewSession(options)
	if err != nil {
		log.Println("session error:", err)
		client.Destroy()
		return
	}

	data := client.Data()
	data.ID = id.String()
	data.Session = session
	data.Hub = h

	h.mu.Lock()
	h.sessions[data.ID] = session
	h.mu.Unlock()

	h.clients.Add(client)
	client.Init()
	client.Send(Welcome{
		SessionID: data.ID,
		Size:      session.Size(),
		Noise:     session.Noise(),
		Bands:     session.Bands(),
	})

	h.regenerate(client, session)
}

// Must be followed by removing client from h.clients.
func (h *Hub) close(client Client) {
	client.Close()
	data := client.Data()
	data.Session.Close()

	h.mu.Lock()
	delete(h.sessions, data.ID)
	h.mu.Unlock()

	data.Hub = nil
}

// post queues out to be sent to client by the hub goroutine. It may be
// called from any goroutine.
func (h *Hub) post(client Client, out outbound) {
	select {
	case h.outbound <- SignedOutbound{Client: client, outbound: out}:
	case <-h.stop:
	}
}

// regenerate starts a regeneration whose guide arrives as a Preview.
func (h *Hub) regenerate(client Client, session *Session) {
	job := session.Regenerate()
	go func() {
		if _, err := job.Wait(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
			h.post(client, NewFailure("regenerate", err))
		}
	}()
}
