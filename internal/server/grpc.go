// Package server wires the HTTP routes and the gRPC health listener.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewGRPCServer returns a gRPC server exposing the standard health service and reflection.
// Traces and metrics go to the global OTel providers.
func NewGRPCServer(health healthpb.HealthServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, health)
	reflection.Register(s)
	return s
}

// RegisterServices registers the health service with s.
func RegisterServices(s grpc.ServiceRegistrar, health healthpb.HealthServer) {
	healthpb.RegisterHealthServer(s, health)
}
