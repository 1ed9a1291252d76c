// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server wires the Turn Driver behind the §6.1 Chat API: a
// chi-routed HTTP server exposing POST /chat, GET /metrics and
// GET /healthz, with graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/travelbot/orchestrator/pkg/metrics"
	"github.com/travelbot/orchestrator/pkg/session"
	"github.com/travelbot/orchestrator/pkg/turn"
)

const (
	maxMessageLen  = 2000
	maxThreadIDLen = 64
)

// Server is the §6.1 Chat API's HTTP surface.
type Server struct {
	deps    turn.Deps
	metrics *metrics.Metrics
	store   session.Store
	log     *slog.Logger
	http    *http.Server
}

// New builds a Server ready to ListenAndServe on addr.
func New(addr string, deps turn.Deps, m *metrics.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{deps: deps, metrics: m, store: deps.Store, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(deps.TurnDeadline + 2*time.Second))

	r.Post("/chat", s.handleChat)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/healthz", s.handleHealthz)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  90 * time.Second,
	}
	return s
}

// requestLogger logs one line per request in the teacher's
// slog-based style, without wrapping the ResponseWriter (so
// streaming/flushing handlers, should any ever be added, keep
// working).
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// ListenAndServe starts the server and blocks until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("http server shutting down")
		return s.http.Shutdown(shutdownCtx)
	}
}

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId"`
	Receipts bool   `json:"receipts"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleChat implements POST /chat (§6.1): 400 on schema violation,
// 200 with a graceful reply on any downstream failure, since the Turn
// Driver itself never propagates an error up to this layer.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if len(req.Message) == 0 || utf8.RuneCountInString(req.Message) > maxMessageLen {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message must be 1-2000 characters"})
		return
	}
	if utf8.RuneCountInString(req.ThreadID) > maxThreadIDLen {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "threadId must be at most 64 characters"})
		return
	}

	if s.metrics != nil {
		s.metrics.IncMessage()
	}

	result := turn.Run(r.Context(), s.deps, turn.Request{
		Message:  req.Message,
		ThreadID: req.ThreadID,
		Receipts: req.Receipts,
	})

	if s.metrics != nil && len(result.Citations) > 0 {
		s.metrics.IncAnswerWithCitations()
	}

	writeJSON(w, http.StatusOK, result)
}

// handleMetrics implements GET /metrics (§6.1): the JSON counter
// snapshot, not a Prometheus exposition-format endpoint (the
// prometheus.Registry backing it is still reachable via
// Metrics.Registry for anyone wiring promhttp.Handler separately).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeJSON(w, http.StatusOK, metrics.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

type healthResponse struct {
	OK      bool   `json:"ok"`
	Session string `json:"session,omitempty"`
}

// handleHealthz implements GET /healthz, supplemented with a
// best-effort session-store reachability probe (a minimal GetSlots
// read the memory/remote store implementations both satisfy
// cheaply).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{OK: true}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, err := s.store.GetSlots(ctx, "__healthz__"); err != nil {
			resp.OK = false
			resp.Session = "unreachable"
		}
	}

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
