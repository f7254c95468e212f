// Package instance implements the browser instance lifecycle: the
// crash-safe JSON store for instance records and the controller that
// serializes state transitions per instance, reconciles persisted state
// with live processes at boot, and restarts crashed auto-start browsers
// with bounded backoff.
package instance
