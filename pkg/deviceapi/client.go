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

// Package deviceapi is the console-side typed client for the device
// control protocol. Transport failures, deadline hits, and protocol
// errors surface as distinct error kinds so callers can label a device
// offline versus misconfigured.
package deviceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carverauto/fleetcam/pkg/models"
)

var (
	// ErrTimeout reports a request that hit its deadline.
	ErrTimeout = errors.New("device request timed out")

	// ErrConnection reports a transport failure before any response.
	ErrConnection = errors.New("device unreachable")
)

// APIError is a protocol-level failure decoded from the device's JSON
// error body.
type APIError struct {
	Code       models.ErrorCode
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("device returned %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

const defaultRequestTimeout = 5 * time.Second

// Client talks to one device control server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token attached to every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client for the device at baseURL, e.g.
// "http://10.0.1.20:8080".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Status fetches the full device status document.
func (c *Client) Status(ctx context.Context) (*models.DeviceStatus, error) {
	var status models.DeviceStatus

	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// Capabilities fetches the advertised capture modes.
func (c *Client) Capabilities(ctx context.Context) ([]models.CapabilityMode, error) {
	var caps []models.CapabilityMode

	if err := c.do(ctx, http.MethodGet, "/api/v1/capabilities", nil, &caps); err != nil {
		return nil, err
	}

	return caps, nil
}

// StartStream starts the device's outgoing stream with the settings.
func (c *Client) StartStream(ctx context.Context, settings models.StreamSettings) error {
	return c.do(ctx, http.MethodPost, "/api/v1/stream/start", settings, nil)
}

// StopStream stops the device's outgoing stream.
func (c *Client) StopStream(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/stream/stop", nil, nil)
}

// UpdateCameraSettings applies partial camera settings.
func (c *Client) UpdateCameraSettings(ctx context.Context, settings models.CameraSettings) error {
	return c.do(ctx, http.MethodPost, "/api/v1/camera", settings, nil)
}

// VideoSettings fetches the device's transmission settings.
func (c *Client) VideoSettings(ctx context.Context) (*models.VideoSettings, error) {
	var settings models.VideoSettings

	if err := c.do(ctx, http.MethodGet, "/api/v1/video/settings", nil, &settings); err != nil {
		return nil, err
	}

	return &settings, nil
}

// UpdateVideoSettings replaces the device's transmission settings.
func (c *Client) UpdateVideoSettings(ctx context.Context, settings models.VideoSettings) error {
	return c.do(ctx, http.MethodPut, "/api/v1/video/settings", settings, nil)
}

// ForceKeyframe requests an immediate keyframe from the encoder.
func (c *Client) ForceKeyframe(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/encoder/force_keyframe", nil, nil)
}

// SetScreenBrightness dims or restores the device screen.
func (c *Client) SetScreenBrightness(ctx context.Context, dimmed bool) error {
	body := struct {
		Dimmed bool `json:"dimmed"`
	}{Dimmed: dimmed}

	return c.do(ctx, http.MethodPost, "/api/v1/screen/brightness", body, nil)
}

// do runs one request/response cycle. A non-nil out is filled from a
// 2xx body; error statuses are decoded into *APIError.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader

	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrConnection, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// classifyTransportError splits deadline hits from plain transport
// failures so the registry can distinguish slow from gone.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrConnection, err)
}

func decodeAPIError(status int, data []byte) error {
	var body models.ErrorBody

	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		return &APIError{
			Code:       models.ErrCodeUpstream,
			Message:    fmt.Sprintf("unexpected response (status %d)", status),
			StatusCode: status,
		}
	}

	return &APIError{
		Code:       body.Code,
		Message:    body.Message,
		StatusCode: status,
	}
}
