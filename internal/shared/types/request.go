package types

import "time"

// CreateRequest is the payload for creating an instance.
type CreateRequest struct {
	Name      string `json:"name" binding:"required"`
	Proxy     *Proxy `json:"proxy,omitempty"`
	AutoStart bool   `json:"auto_start"`
	HomeURL   string `json:"home_url,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// UpdateRequest is a partial update. Nil fields are left untouched.
// Clearing the proxy is expressed as {"type": "none"}. When Version is
// set the update fails with ErrConflict unless it matches the stored
// record (optimistic concurrency for concurrent admin tabs).
type UpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	Proxy     *Proxy  `json:"proxy,omitempty"`
	AutoStart *bool   `json:"auto_start,omitempty"`
	HomeURL   *string `json:"home_url,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	Version   *int    `json:"version,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (r *UpdateRequest) IsEmpty() bool {
	return r.Name == nil && r.Proxy == nil && r.AutoStart == nil &&
		r.HomeURL == nil && r.Notes == nil
}

// ProxyCheckRequest configures a connectivity probe through an
// instance's proxy.
type ProxyCheckRequest struct {
	URL       string `json:"url,omitempty"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

// ProxyCheckResult reports the outcome of a proxy probe.
type ProxyCheckResult struct {
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

// ClipboardRequest is the payload for writing the shared VNC clipboard.
type ClipboardRequest struct {
	Content string `json:"content"`
}

// Event is a state-change notification emitted by the lifecycle
// controller and streamed to admin UI clients.
type Event struct {
	InstanceID string        `json:"instance_id"`
	State      ObservedState `json:"observed_state"`
	At         time.Time     `json:"at"`
}
