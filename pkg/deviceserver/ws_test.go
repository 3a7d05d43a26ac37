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
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleetcam/pkg/models"
)

func dialWS(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	return websocket.DefaultDialer.Dial(url, header)
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	s := newTestServer(t, &fakePipeline{}, nil)

	srv := httptest.NewServer(s.httpServer.Handler)
	defer srv.Close()

	conn, resp, err := dialWS(t, srv, "")
	if conn != nil {
		_ = conn.Close()
	}

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketSetAppliesCameraSettings(t *testing.T) {
	pipe := &fakePipeline{}
	s := newTestServer(t, pipe, nil)

	srv := httptest.NewServer(s.httpServer.Handler)
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "secret")
	require.NoError(t, err)

	defer func() { _ = conn.Close() }()

	frame := `{"op":"set","camera":{"iso":800,"zoom_factor":2.0}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	require.Eventually(t, func() bool {
		return pipe.cameraCallCount() == 1
	}, time.Second, 10*time.Millisecond)

	applied := pipe.lastCameraCall()
	require.NotNil(t, applied.ISO)
	assert.Equal(t, 800, *applied.ISO)
	require.NotNil(t, applied.ZoomFactor)
	assert.InDelta(t, 2.0, *applied.ZoomFactor, 0.001)
}

func TestWebSocketDropsMalformedFrames(t *testing.T) {
	pipe := &fakePipeline{}
	s := newTestServer(t, pipe, nil)

	srv := httptest.NewServer(s.httpServer.Handler)
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "secret")
	require.NoError(t, err)

	defer func() { _ = conn.Close() }()

	// Garbage, an unsupported op, and a set without settings are all
	// dropped without killing the connection.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"reboot"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"set"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"op":"set","camera":{"iso":400}}`)))

	require.Eventually(t, func() bool {
		return pipe.cameraCallCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWebSocketSetSharesRateBudgetWithREST(t *testing.T) {
	pipe := &fakePipeline{}
	s := newTestServer(t, pipe, nil)

	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	s.limiter.now = clock.Now

	srv := httptest.NewServer(s.httpServer.Handler)
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "secret")
	require.NoError(t, err)

	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"op":"set","camera":{"iso":400}}`)))

	require.Eventually(t, func() bool {
		return pipe.cameraCallCount() == 1
	}, time.Second, 10*time.Millisecond)

	// A REST camera mutation inside the same window is throttled.
	rec := doRequest(s, http.MethodPost, "/api/v1/camera", "secret", `{"iso":800}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, pipe.cameraCallCount())
}

func TestTelemetryBroadcastReachesClient(t *testing.T) {
	pipe := &fakePipeline{
		telemetry: models.TelemetryFrame{
			FPS:           30,
			Battery:       76,
			NDIState:      models.NDIStateStreaming,
			ChargingState: models.ChargingStateDischarging,
		},
	}

	s := newTestServer(t, pipe, func(cfg *Config) {
		cfg.TelemetryInterval = models.Duration(20 * time.Millisecond)
	})

	srv := httptest.NewServer(s.httpServer.Handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.telemetryLoop(ctx)

	conn, _, err := dialWS(t, srv, "secret")
	require.NoError(t, err)

	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame models.TelemetryFrame
	require.NoError(t, json.Unmarshal(data, &frame))

	assert.InDelta(t, 30.0, frame.FPS, 0.001)
	assert.InDelta(t, 76.0, frame.Battery, 0.001)
	assert.Equal(t, models.NDIStateStreaming, frame.NDIState)
}
