// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wsrelay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ClusterCockpit/framesync/internal/codec"
	"github.com/ClusterCockpit/framesync/pkg/align"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRow() []align.GetResult[codec.Frame] {
	return []align.GetResult[codec.Frame]{
		{Entry: align.Entry[codec.Frame]{Value: codec.Frame{Kind: codec.KindColor, Payload: []byte{1, 2, 3}}, IndexValue: 7}, Delta: 1, Position: 0},
	}
}

func TestHubBroadcastsRowToClient(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a moment to register the client.
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, hub.ClientCount())

	hub.Send(testRow())

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, meta, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(meta), `"stream_index":0`)
	assert.Contains(t, string(meta), `"index_value":7`)

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}

func TestHubDisconnectsSlowClient(t *testing.T) {
	hub := NewHub()
	c := &client{conn: nil, send: make(chan []align.GetResult[codec.Frame], 1)}
	hub.clients[c] = struct{}{}

	// Fill the buffer, then send again: hub.Send must not block on a full
	// client channel, and must disconnect it instead.
	c.send <- testRow()

	done := make(chan struct{})
	go func() {
		hub.Send(testRow())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full client channel")
	}

	assert.Equal(t, 0, hub.ClientCount())
}
