/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package healthserver exposes the /health and /metrics HTTP surface described in SPEC_FULL.md §6.
package healthserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Rifat79/dcb-renewal-service/internal/metrics"
)

// Checker reports whether a dependency is currently reachable.
type Checker func() bool

// Server serves the operational HTTP surface for the renewal service.
type Server struct {
	router    chi.Router
	startedAt time.Time
	checks    map[string]Checker
}

// New builds a Server. checks maps a sub-status name (redis_connected, broker_connected,
// db_connected) to a function reporting its current liveness.
func New(registerer prometheus.Registerer, checks map[string]Checker) (*Server, error) {
	wrap, err := metrics.NewHandlerWrapper().
		SetSubsystem("dcb_http").
		AddPaths("/health", "/metrics").
		SetRegisterer(registerer).
		Build()
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:    chi.NewRouter(),
		startedAt: time.Now(),
		checks:    checks,
	}

	s.router.Use(wrap)
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	return s, nil
}

// Router returns the underlying HTTP handler, for embedding in an *http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

type healthResponse struct {
	Status         string    `json:"status"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
	Timestamp      time.Time `json:"timestamp"`
	RedisConnected bool      `json:"redis_connected"`
	BrokerConnected bool     `json:"broker_connected"`
	DBConnected    bool      `json:"db_connected"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	redisOK := s.runCheck("redis_connected")
	brokerOK := s.runCheck("broker_connected")
	dbOK := s.runCheck("db_connected")

	status := "ok"
	if !redisOK || !brokerOK || !dbOK {
		status = "degraded"
	}

	resp := healthResponse{
		Status:          status,
		UptimeSeconds:   time.Since(s.startedAt).Seconds(),
		Timestamp:       time.Now().UTC(),
		RedisConnected:  redisOK,
		BrokerConnected: brokerOK,
		DBConnected:     dbOK,
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) runCheck(name string) bool {
	check, ok := s.checks[name]
	if !ok || check == nil {
		return true
	}
	return check()
}

// Serve runs the HTTP server until ctx is canceled, then shuts it down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
