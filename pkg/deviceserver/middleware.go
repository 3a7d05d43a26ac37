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
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/carverauto/fleetcam/pkg/models"
)

// corsMiddleware sets CORS headers and short-circuits preflight
// requests. It runs first so even rejected requests carry the headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origin := "*"
	if len(s.config.AllowedOrigins) > 0 {
		origin = strings.Join(s.config.AllowedOrigins, ", ")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware enforces the bearer token on the API surface and the
// WebSocket upgrade. The token digests are compared in constant time.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	expected := sha256.Sum256([]byte(s.config.AuthToken))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.AuthEnabled || !isProtectedPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			s.log.Warn().
				Str("remote_addr", r.RemoteAddr).
				Str("path", r.URL.Path).
				Msg("Request missing bearer token")
			writeError(w, models.ErrCodeUnauthorized, "missing or malformed Authorization header")

			return
		}

		presented := sha256.Sum256([]byte(token))
		if subtle.ConstantTimeCompare(expected[:], presented[:]) != 1 {
			s.log.Warn().
				Str("remote_addr", r.RemoteAddr).
				Str("path", r.URL.Path).
				Msg("Request with invalid bearer token")
			writeError(w, models.ErrCodeUnauthorized, "invalid token")

			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware rejects mutation requests arriving faster than the
// configured minimum spacing for their path class.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class, limited := limitedClass(r.Method, r.URL.Path)
		if !limited {
			next.ServeHTTP(w, r)
			return
		}

		if wait, ok := s.limiter.Allow(class); !ok {
			writeError(w, models.ErrCodeRateLimited,
				fmt.Sprintf("too many %s requests, wait %dms", class, wait.Milliseconds()))

			return
		}

		next.ServeHTTP(w, r)
	})
}

func isProtectedPath(path string) bool {
	return strings.HasPrefix(path, "/api/") || path == "/ws"
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}

	return strings.TrimPrefix(header, prefix), true
}
