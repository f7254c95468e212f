// Package main is the entry point for the firedesk admin server.
//
// This application manages isolated Firefox instances inside a
// container, each bound to its own profile directory with its own proxy
// configuration, all rendered on a shared VNC display.
//
// Architecture:
//
//	Admin UI (HTTP/WS) → Admin Server → firefox-esr processes (per profile)
//	                                  → Xvnc / websockify (health checks)
//
// The server provides:
//   - REST API for instance CRUD and lifecycle control
//   - WebSocket streaming of state transitions
//   - Proxy connectivity probes and profile export
//   - Clipboard bridge into the VNC session
//   - Crash detection with bounded automatic restarts
//
// Configuration:
//   - Environment variables (12-factor)
//   - Defaults suitable for the container image
//
// Usage:
//
//	# Production mode
//	PORT=8080 DATA_DIR=/data VNC_DISPLAY=:1 ./server
//
//	# Development mode (colored logs, debug level)
//	LOG_DEV=true LOG_LEVEL=debug ./server
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown; running browsers are left
//     alive and re-adopted on the next start
package main
