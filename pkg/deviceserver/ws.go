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

package deviceserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/fleetcam/pkg/models"
	"github.com/carverauto/fleetcam/pkg/wshub"
)

const wsCommandTimeout = 5 * time.Second

// handleWebSocket upgrades the connection and runs the read loop. Auth
// has already been enforced by the middleware chain, so a rejected
// token is turned away as plain 401 JSON before any upgrade happens.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := wshub.NewClient(conn, r.RemoteAddr)
	s.hub.Add(client)

	s.log.Info().
		Str("remote_addr", r.RemoteAddr).
		Int("clients", s.hub.ClientCount()).
		Msg("WebSocket client connected")

	defer func() {
		s.hub.Remove(client)
		_ = conn.Close()

		s.log.Info().
			Str("remote_addr", r.RemoteAddr).
			Int("clients", s.hub.ClientCount()).
			Msg("WebSocket client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket read error")
			}

			return
		}

		s.handleWSCommand(r.RemoteAddr, data)
	}
}

// handleWSCommand applies one inbound frame. Malformed or unsupported
// frames are logged and dropped; the telemetry feed keeps flowing.
func (s *Server) handleWSCommand(remoteAddr string, data []byte) {
	var envelope models.WSEnvelope

	if err := json.Unmarshal(data, &envelope); err != nil {
		s.log.Warn().Err(err).Str("remote_addr", remoteAddr).Msg("Dropping malformed WebSocket frame")
		return
	}

	if envelope.Op != models.WSOpSet {
		s.log.Warn().
			Str("op", envelope.Op).
			Str("remote_addr", remoteAddr).
			Msg("Dropping WebSocket frame with unsupported op")

		return
	}

	if envelope.Camera == nil || envelope.Camera.Empty() {
		s.log.Warn().Str("remote_addr", remoteAddr).Msg("Dropping set frame without camera settings")
		return
	}

	// Settings over the socket share the rate budget with the REST path.
	if wait, ok := s.limiter.Allow("camera"); !ok {
		s.log.Warn().
			Str("remote_addr", remoteAddr).
			Dur("wait", wait).
			Msg("Dropping set frame, camera rate limit exceeded")

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsCommandTimeout)
	defer cancel()

	if err := s.applyCameraSettings(ctx, envelope.Camera); err != nil {
		s.log.Error().Err(err).Str("remote_addr", remoteAddr).Msg("WebSocket camera update failed")
	}
}
