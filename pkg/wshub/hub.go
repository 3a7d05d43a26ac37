/*
 * Copyright 2026 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package wshub maintains the set of live WebSocket clients for one
// device and broadcasts telemetry to all of them. Delivery is
// best-effort: a slow or dead client never delays the others, and a
// failed write is resolved by that client's own disconnect path.
package wshub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/fleetcam/pkg/logger"
)

const writeWait = 5 * time.Second

// Conn is the subset of *websocket.Conn the hub writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is a lightweight handle for one connected console. The hub
// holds the handle, never the connection's lifetime: the read loop that
// created the client is responsible for removing it on disconnect.
type Client struct {
	conn       Conn
	remoteAddr string
}

// NewClient wraps an upgraded connection.
func NewClient(conn Conn, remoteAddr string) *Client {
	return &Client{conn: conn, remoteAddr: remoteAddr}
}

// RemoteAddr identifies the client for logging.
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Send writes one text frame with a bounded deadline.
func (c *Client) Send(payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub is the client registry. One mutex guards the set; it is held only
// for registry reads and writes, never across a network write.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	log     logger.Logger
}

// New creates an empty hub.
func New(log logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		log:     log,
	}
}

// Add registers a client.
func (h *Hub) Add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = struct{}{}
}

// Remove unregisters a client. Removing an unknown client is a no-op.
func (h *Hub) Remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, client)
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Broadcast sends payload to every client registered at the moment of
// the call. The set is copied under the lock and written outside it; a
// failed write is logged and left for the client's disconnect path to
// clean up.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	snapshot := make([]*Client, 0, len(h.clients))

	for client := range h.clients {
		snapshot = append(snapshot, client)
	}
	h.mu.Unlock()

	for _, client := range snapshot {
		if err := client.Send(payload); err != nil {
			h.log.Debug().
				Err(err).
				Str("remote_addr", client.RemoteAddr()).
				Msg("Telemetry write failed, client pending disconnect")
		}
	}
}

// CloseAll closes every connection and empties the registry.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	snapshot := make([]*Client, 0, len(h.clients))

	for client := range h.clients {
		snapshot = append(snapshot, client)
	}

	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, client := range snapshot {
		if err := client.conn.Close(); err != nil {
			h.log.Debug().Err(err).Msg("Error closing client connection")
		}
	}
}
