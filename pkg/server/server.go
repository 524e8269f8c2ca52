/*
 * Copyright 2018 Ji-Young Park(jiyoung.park.dev@gmail.com)
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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang/glog"

	"github.com/jparklab/synology-photos/pkg/photoframe"
)

// CatalogReader exposes the published catalog and the last failure
type CatalogReader interface {
	Catalog() *photoframe.Catalog
	LastFailure() (time.Time, error)
}

// Trigger starts a fetch cycle, false when one is already running
type Trigger interface {
	Trigger() bool
}

// Server serves the catalog and the thumbnail proxy to the display
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	catalog    CatalogReader
	trigger    Trigger
	interval   time.Duration
}

// New creates a Server listening on addr
func New(addr string, catalog CatalogReader, trigger Trigger, proxy http.Handler, proxyPath string, interval time.Duration) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:   r,
		catalog:  catalog,
		trigger:  trigger,
		interval: interval,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(time.Minute))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/photos", s.handlePhotos)
		r.Post("/refresh", s.handleRefresh)
	})
	r.Method(http.MethodGet, proxyPath, proxy)
	r.Method(http.MethodHead, proxyPath, proxy)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	glog.Infof("Listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

type photosResponse struct {
	Photos      []photoframe.Photo `json:"photos"`
	Source      string             `json:"source,omitempty"`
	GeneratedAt *time.Time         `json:"generated_at,omitempty"`
	Stale       bool               `json:"stale"`
	Error       string             `json:"error,omitempty"`
	ErrorAt     *time.Time         `json:"error_at,omitempty"`
}

func (s *Server) handlePhotos(w http.ResponseWriter, r *http.Request) {
	resp := photosResponse{Photos: []photoframe.Photo{}}

	catalog := s.catalog.Catalog()
	if catalog != nil {
		resp.Photos = catalog.Photos
		resp.Source = catalog.Source
		generatedAt := catalog.GeneratedAt
		resp.GeneratedAt = &generatedAt
		if s.interval > 0 && time.Since(generatedAt) > 2*s.interval {
			resp.Stale = true
		}
	}

	if at, err := s.catalog.LastFailure(); err != nil {
		resp.Error = photoframe.UserMessage(err)
		resp.ErrorAt = &at
		resp.Stale = true
	}

	if catalog == nil && resp.Error == "" {
		respondError(w, http.StatusServiceUnavailable, "catalog not fetched yet")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	triggered := s.trigger.Trigger()
	respondJSON(w, http.StatusAccepted, map[string]bool{"triggered": triggered})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.catalog.Catalog() == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
