// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"sonyhub/internal/device"
	"sonyhub/internal/logger"
)

// NonceHeader carries the idempotency nonce of an action request
const NonceHeader = "X-Nonce"

const maxActionSize = 64 << 10

// Devices is what the API serves
type Devices interface {
	GetAllDeviceInfo() []device.DeviceInfo
	GetDevice(id string) (device.Device, error)
	GetDeviceEvents(id string) ([]device.Event, error)
	ProcessDeviceActionWithNonce(ctx context.Context, deviceID, nonce string, actionJSON []byte) *device.ActionResponse
	NonceStats() map[string]interface{}
}

// Reloader rebuilds the devices from the configuration file
type Reloader interface {
	ReloadConfig(ctx context.Context) error
}

// Server handles REST API requests
type Server struct {
	devices  Devices
	reloader Reloader
	jwt     *JWTService
	hubID   string
	started time.Time
	logger  zerolog.Logger

	mu      sync.Mutex
	server  *http.Server
	stopped bool
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithJWT guards the device routes with bearer tokens
func WithJWT(j *JWTService) ServerOption {
	return func(s *Server) {
		s.jwt = j
	}
}

// WithReloader enables POST /api/v1/reload
func WithReloader(r Reloader) ServerOption {
	return func(s *Server) {
		s.reloader = r
	}
}

// WithHubID reports id in the health endpoint
func WithHubID(id string) ServerOption {
	return func(s *Server) {
		s.hubID = id
	}
}

// NewServer creates a new API server
func NewServer(devices Devices, opts ...ServerOption) *Server {
	s := &Server{
		devices: devices,
		started: time.Now(),
		logger:  logger.Component("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	apiRouter.Handle("/devices", s.jwt.RequireAuth(http.HandlerFunc(s.handleListDevices))).Methods(http.MethodGet)
	apiRouter.Handle("/devices/{id}", s.jwt.RequireAuth(http.HandlerFunc(s.handleGetDevice))).Methods(http.MethodGet)
	apiRouter.Handle("/devices/{id}/actions", s.jwt.RequireAuth(http.HandlerFunc(s.handleDeviceAction))).Methods(http.MethodPost)
	apiRouter.Handle("/devices/{id}/events", s.jwt.RequireAuth(http.HandlerFunc(s.handleDeviceEvents))).Methods(http.MethodGet)

	if s.reloader != nil {
		apiRouter.Handle("/reload", s.jwt.RequireAuth(http.HandlerFunc(s.handleReload))).Methods(http.MethodPost)
	}

	return router
}

// Start serves the API on address until Stop is called
func (s *Server) Start(address string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:         address,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.server = srv
	s.mu.Unlock()

	s.logger.Info().
		Str("address", address).
		Bool("auth", s.jwt != nil).
		Msg("Starting API server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("API request")
	})
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "running",
		"hub_id":       s.hubID,
		"uptime":       time.Since(s.started).Round(time.Second).String(),
		"device_count": len(s.devices.GetAllDeviceInfo()),
		"nonce_cache":  s.devices.NonceStats(),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"devices": s.devices.GetAllDeviceInfo(),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.GetDevice(mux.Vars(r)["id"])
	if err != nil {
		sendError(w, http.StatusNotFound, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, dev.GetDeviceInfo())
}

func (s *Server) handleDeviceEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.devices.GetDeviceEvents(mux.Vars(r)["id"])
	if err != nil {
		sendError(w, http.StatusNotFound, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleDeviceAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.devices.GetDevice(id); err != nil {
		sendError(w, http.StatusNotFound, err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxActionSize))
	if err != nil {
		sendError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if !json.Valid(body) {
		sendError(w, http.StatusBadRequest, "request body must be a JSON action")
		return
	}

	nonce := r.Header.Get(NonceHeader)
	response := s.devices.ProcessDeviceActionWithNonce(r.Context(), id, nonce, body)

	status := http.StatusOK
	if !response.Success {
		status = http.StatusUnprocessableEntity
	}
	sendJSON(w, status, response)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.reloader.ReloadConfig(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("Reload failed")
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"devices": s.devices.GetAllDeviceInfo(),
	})
}
