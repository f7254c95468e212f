// Package types provides shared data structures for the firedesk backend.
//
// This package defines core types used across all backend components,
// ensuring type safety and consistent data structures.
//
// Core Types:
//   - Instance: Managed browser identity with profile and proxy config
//   - Proxy: Upstream proxy definition (http, https, socks5)
//   - Event: Instance state-change notification
//
// Request Types:
//   - CreateRequest, UpdateRequest: Instance CRUD payloads
//   - ProxyCheckRequest, ClipboardRequest: Auxiliary operations
//
// State Management:
//   - ObservedState: Runtime status enum (stopped, starting, running,
//     stopping, crashed)
//   - DesiredState: Operator intent (running, stopped)
//   - Stats: Controller-wide instance counts
//
// Error Taxonomy:
//   - ErrNotFound, ErrConflict: Sentinel errors
//   - ValidationError, ProcessError, StoreError, ConfigError: Typed
//     failures propagated to the HTTP layer
package types
