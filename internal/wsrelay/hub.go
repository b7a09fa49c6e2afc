// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wsrelay stands in for the WebRTC signaling/transport path
// spec.md places out of scope (§6, §1 Non-goals): it fans completed rows
// out to connected browser clients over a plain websocket, fixing only the
// interface the alignment core's row sink feeds into. There is no
// ICE/SDP/DTLS here, just JSON frame metadata followed by the raw payload
// bytes as a second binary websocket frame, to avoid base64-inflating
// image/depth data.
package wsrelay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ClusterCockpit/framesync/internal/codec"
	"github.com/ClusterCockpit/framesync/pkg/align"
	"github.com/ClusterCockpit/framesync/pkg/log"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// rowEntryMeta is the JSON envelope sent ahead of each entry's raw payload.
type rowEntryMeta struct {
	StreamIndex   int    `json:"stream_index"`
	Kind          string `json:"kind"`
	IndexValue    uint64 `json:"index_value"`
	Delta         uint64 `json:"delta"`
	Position      int    `json:"position"`
	PayloadLength int    `json:"payload_length"`
}

// client is a single connected browser's websocket session.
type client struct {
	conn *websocket.Conn
	send chan []align.GetResult[codec.Frame]
}

// Hub fans completed rows out to every connected client. It implements
// rowsink.Sink[codec.Frame] so it can be registered directly into a
// rowsink.FanOut alongside the display queue.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a websocket connection and registers
// the resulting client with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("wsrelay: upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []align.GetResult[codec.Frame], sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.Infof("wsrelay: client connected (%d total)", h.ClientCount())

	go h.writePump(c)
	go h.readPump(c)
}

// readPump exists only to notice the client going away; the browser-facing
// renderer this stands in for has nothing to say back to the hub.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer func() {
		c.conn.Close()
	}()

	for row := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			h.remove(c)
			return
		}
		if err := writeRow(c.conn, row); err != nil {
			h.remove(c)
			return
		}
	}
}

func writeRow(conn *websocket.Conn, row []align.GetResult[codec.Frame]) error {
	for streamIndex, r := range row {
		meta := rowEntryMeta{
			StreamIndex:   streamIndex,
			Kind:          r.Entry.Value.Kind.String(),
			IndexValue:    r.Entry.IndexValue,
			Delta:         r.Delta,
			Position:      r.Position,
			PayloadLength: len(r.Entry.Value.Payload),
		}
		payload, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, r.Entry.Value.Payload); err != nil {
			return err
		}
	}
	return nil
}

// remove unregisters and disconnects a client. A slow client is dropped
// rather than allowed to backpressure the hub, mirroring the row sink's
// must-not-block contract (spec.md §4.3/§9).
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if c.conn != nil {
		c.conn.Close()
	}
	log.Infof("wsrelay: client disconnected (%d remaining)", len(h.clients))
}

// Send implements rowsink.Sink[codec.Frame]: it forwards row to every
// connected client without blocking. A client whose send buffer is already
// full is disconnected instead of allowed to stall the others.
func (h *Hub) Send(row []align.GetResult[codec.Frame]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var stale []*client
	for c := range h.clients {
		select {
		case c.send <- row:
		default:
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		delete(h.clients, c)
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Shutdown closes every connected client, used by the cmd/framesync
// graceful-shutdown sequence. Connections are closed at once; rows still
// buffered for a client are not written out.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}
