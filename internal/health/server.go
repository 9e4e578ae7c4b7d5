// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package health reports process and device-stream liveness over HTTP and
// the standard gRPC health protocol.
package health

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// IngestService is the gRPC health service name tracking the device stream.
const IngestService = "gridwatch.ingest"

type Server struct {
	running         atomic.Bool
	deviceConnected atomic.Bool
	subscribers     func() int

	grpcHealth *grpchealth.Server
	grpcServer *grpc.Server
}

// New returns a health server. subscribers may be nil.
func New(subscribers func() int) *Server {
	s := &Server{
		subscribers: subscribers,
		grpcHealth:  grpchealth.NewServer(),
		grpcServer:  grpc.NewServer(),
	}
	s.Register(s.grpcServer)
	s.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.grpcHealth.SetServingStatus(IngestService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) SetRunning(ok bool) {
	s.running.Store(ok)
	s.grpcHealth.SetServingStatus("", servingStatus(ok))
}

// SetDeviceConnected flips the ingest service between SERVING and NOT_SERVING.
func (s *Server) SetDeviceConnected(ok bool) {
	s.deviceConnected.Store(ok)
	s.grpcHealth.SetServingStatus(IngestService, servingStatus(ok))
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Status is the /health response body.
type Status struct {
	Running         bool `json:"running"`
	DeviceConnected bool `json:"device_connected"`
	Subscribers     int  `json:"subscribers"`
}

func (s *Server) Status() Status {
	st := Status{
		Running:         s.running.Load(),
		DeviceConnected: s.deviceConnected.Load(),
	}
	if s.subscribers != nil {
		st.Subscribers = s.subscribers()
	}
	return st
}

// HandleHealth answers 200 while running and 503 otherwise. A lost device
// stream does not fail the check: cached telemetry is still served.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.Status()
	w.Header().Set("Content-Type", "application/json")
	if !st.Running {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(st)
}

// Register adds the gRPC health service to srv.
func (s *Server) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.grpcHealth)
}

// ServeGRPC serves the health service on port; it blocks.
func (s *Server) ServeGRPC(port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("listen grpc health: %w", err)
	}
	return s.grpcServer.Serve(lis)
}

// Shutdown marks every service NOT_SERVING and stops the gRPC server.
func (s *Server) Shutdown() {
	s.running.Store(false)
	s.grpcHealth.Shutdown()
	s.grpcServer.GracefulStop()
}
