// Package ws provides WebSocket handling for real-time state updates.
//
// This package streams instance state transitions to admin UI clients so
// the dashboard reflects crashes and restarts without polling.
//
// Features:
//   - Snapshot of all instances on connect
//   - Live state-change events from the lifecycle controller
//   - Automatic connection upgrade from HTTP
//   - Keep-alive pings and dead-peer detection
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - snapshot: Full instance list, sent once on connect
//   - state: One instance changed observed state
//   - pong: Ping reply
//
// Example Usage:
//
//	handler := ws.NewHandler(manager, metrics, logger)
//	router.GET("/stream", handler.HandleConnection)
package ws
