/*
Package monitoring provides metrics collection for the agent.

# Overview

This package implements Prometheus-based metrics for the agent's HTTP
surface, its RPC channels, watch sessions and extension discovery.

# Features

- HTTP request metrics (latency, status)
- Channel call metrics (duration, result code)
- Attached listener, watch session and subscription gauges
- Extension scan results, collisions and duration
- WebSocket connection metrics
- Uptime

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Time operations
	timer := monitoring.NewTimer(metrics, "remotefilesystem", "stat")
	// ... perform operation ...
	timer.Stop("")

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
