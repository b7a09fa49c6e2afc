// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpapi assembles the introspection HTTP surface: health, metrics,
// engine state, and the websocket upgrade endpoint. The router-building
// style (mux.NewRouter, gorilla/handlers middleware stack, a plain
// http.Server wrapped around a net.Listener) follows the teacher's
// cmd/cc-backend server assembly.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ClusterCockpit/framesync/internal/healthcheck"
	"github.com/ClusterCockpit/framesync/internal/wsrelay"
	"github.com/ClusterCockpit/framesync/pkg/align"
	"github.com/ClusterCockpit/framesync/pkg/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StateView is the JSON body served at GET /state.
type StateView struct {
	CompletedRows    uint64   `json:"completed_rows"`
	SkippedTotal     uint64   `json:"skipped_total"`
	SkippedPerStream []uint64 `json:"skipped_per_stream"`
	StreamNames      []string `json:"stream_names"`
	BufferLengths    []int    `json:"buffer_lengths"`
	BufferCapacities []int    `json:"buffer_capacities"`
}

// HealthView is the JSON body served at GET /healthz.
type HealthView struct {
	Healthy       bool   `json:"healthy"`
	NatsConnected bool   `json:"nats_connected"`
	Stalled       []bool `json:"stalled"`
}

// Server wraps the assembled router and an http.Server. The listening socket
// is bound only when Serve is called, not by New.
type Server struct {
	httpServer  *http.Server
	streamNames []string

	statsFn     func() align.Stats
	buffersFn   func() []align.BufferSnapshot
	connectedFn func() bool
	checker     *healthcheck.Checker
	hub         *wsrelay.Hub
}

// Options bundles everything the router needs to read engine/telemetry
// state without importing the concrete Engine[T] (which would force this
// package to be generic over T, unlike the teacher's non-generic API layer).
type Options struct {
	Addr           string
	StreamNames    []string
	StatsFn        func() align.Stats
	BuffersFn      func() []align.BufferSnapshot
	ConnectedFn    func() bool // NATS connection state for /healthz; nil reports false
	Checker        *healthcheck.Checker
	Hub            *wsrelay.Hub
	MetricsHandler http.Handler
}

// New builds the router and wraps it in an http.Server, but does not start
// listening; call Serve once internal/config-driven bootstrap is ready.
func New(opts Options) *Server {
	s := &Server{
		streamNames: opts.StreamNames,
		statsFn:     opts.StatsFn,
		buffersFn:   opts.BuffersFn,
		connectedFn: opts.ConnectedFn,
		checker:     opts.Checker,
		hub:         opts.Hub,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/ws", opts.Hub.ServeWS).Methods(http.MethodGet)
	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler).Methods(http.MethodGet)
	} else {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	r.Use(handlers.RecoveryHandler())
	r.Use(handlers.CompressHandler)
	r.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowedMethods([]string{"GET", "OPTIONS"}),
		handlers.AllowedOrigins([]string{"*"})))

	logged := handlers.CustomLoggingHandler(log.InfoWriter, r, func(w io.Writer, params handlers.LogFormatterParams) {
		log.Finfof(w, "%s %s (Response: %d, Size: %d)", params.Request.Method, params.URL.RequestURI(), params.StatusCode, params.Size)
	})

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      logged,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	view := HealthView{Healthy: true}
	if s.connectedFn != nil {
		view.NatsConnected = s.connectedFn()
	}
	if s.checker != nil {
		view.Stalled = s.checker.Stalled()
		view.Healthy = s.checker.Healthy()
	}
	w.Header().Set("Content-Type", "application/json")
	if !view.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(view)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	stats := s.statsFn()
	buffers := s.buffersFn()

	view := StateView{
		CompletedRows:    stats.CompletedRows,
		SkippedTotal:     stats.SkippedTotal,
		SkippedPerStream: stats.SkippedPerStream,
		StreamNames:      s.streamNames,
	}
	for _, b := range buffers {
		view.BufferLengths = append(view.BufferLengths, b.Len)
		view.BufferCapacities = append(view.BufferCapacities, b.MaxSize)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// Serve binds the configured address and blocks serving requests until the
// listener is closed or Shutdown is called from another goroutine. It
// returns nil on a clean shutdown, matching http.Server.Serve's contract.
func (s *Server) Serve() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	log.Infof("httpapi: listening at %s", s.httpServer.Addr)
	err = s.httpServer.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight requests
// to finish before ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
