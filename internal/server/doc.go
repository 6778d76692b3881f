// Package server wires the agent together.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (recovery, metrics, CORS, rate limiting)
//   - The remotefilesystem and remoteextensionsenvironment channels
//   - The RPC transport on /stream
//   - Health and Prometheus endpoints
//
// Server Lifecycle:
//  1. Load configuration from file, environment and flags
//  2. Initialize logger (production or development)
//  3. Create channels and register them with the RPC server
//  4. Setup HTTP routes and middleware
//  5. Start HTTP server
//  6. Graceful shutdown on signal, disposing all watch sessions
//
// Example Usage:
//
//	cfg, err := config.Load()
//	srv, err := server.NewServer(cfg, logger, server.Options{})
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
