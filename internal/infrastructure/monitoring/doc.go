/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the admin
service, tracking HTTP requests, instance lifecycle transitions, provider
calls, and system metrics.

# Features

- HTTP request metrics (latency, throughput, size)
- Instance lifecycle metrics (per-state gauges, starts, stops, crashes, restarts)
- Provider call metrics (duration, status)
- WebSocket connection and event metrics
- System metrics (uptime)
- JSON snapshot for the health endpoint

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record lifecycle metrics
	metrics.RecordStart()
	metrics.SetInstanceStats(stats)

	// Time provider operations
	timer := monitoring.NewTimer(metrics, "clipboard", "write")
	// ... perform operation ...
	timer.Stop("success")

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
