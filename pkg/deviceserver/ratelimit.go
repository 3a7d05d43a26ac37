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
	"net/http"
	"sync"
	"time"
)

// RateLimiter enforces a minimum spacing between mutation requests,
// tracked per path class. The lock covers only the timestamp check and
// update, never any I/O.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

// NewRateLimiter creates a limiter with the given minimum interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow records an attempt for the class. It returns true when the
// request may proceed; otherwise it returns the remaining wait.
func (l *RateLimiter) Allow(class string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if last, ok := l.last[class]; ok {
		if elapsed := now.Sub(last); elapsed < l.interval {
			return l.interval - elapsed, false
		}
	}

	l.last[class] = now

	return 0, true
}

// limitedClass maps a request to its rate-limit class. Only
// settings-mutation paths are limited; reads and the control page pass
// freely.
func limitedClass(method, path string) (string, bool) {
	switch {
	case method == http.MethodPost && path == "/api/v1/camera":
		return "camera", true
	case method == http.MethodPost && (path == "/api/v1/stream/start" || path == "/api/v1/stream/stop"):
		return "stream", true
	case method == http.MethodPut && path == "/api/v1/video/settings":
		return "video", true
	case method == http.MethodPost && path == "/api/v1/screen/brightness":
		return "screen", true
	case method == http.MethodPost && path == "/api/v1/encoder/force_keyframe":
		return "encoder", true
	default:
		return "", false
	}
}
