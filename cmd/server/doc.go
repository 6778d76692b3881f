// Package main is the entry point for the remote agent server.
//
// The server exposes two channels to remote development clients over a
// WebSocket RPC transport:
//
//	Client → /stream → remotefilesystem            (file operations, watching)
//	                 → remoteextensionsenvironment (paths, extensions, telemetry)
//
// Configuration:
//   - YAML file named by AGENT_CONFIG_FILE
//   - Environment variables (12-factor)
//   - CLI flags (override both)
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -app-root /srv/agent
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown, disposing all watch sessions
package main
