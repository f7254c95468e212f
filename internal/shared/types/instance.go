package types

import "time"

// ObservedState represents the last-known runtime status of an instance.
type ObservedState string

const (
	StateStopped  ObservedState = "stopped"
	StateStarting ObservedState = "starting"
	StateRunning  ObservedState = "running"
	StateStopping ObservedState = "stopping"
	StateCrashed  ObservedState = "crashed"
)

// DesiredState represents operator intent for an instance.
type DesiredState string

const (
	DesiredRunning DesiredState = "running"
	DesiredStopped DesiredState = "stopped"
)

// ProxyType enumerates the supported proxy protocols.
type ProxyType string

const (
	ProxyNone   ProxyType = "none"
	ProxyHTTP   ProxyType = "http"
	ProxyHTTPS  ProxyType = "https"
	ProxySOCKS5 ProxyType = "socks5"
)

// Proxy describes an upstream proxy for one instance.
type Proxy struct {
	Type     ProxyType `json:"type"`
	Host     string    `json:"host,omitempty"`
	Port     int       `json:"port,omitempty"`
	Username string    `json:"username,omitempty"`
	Password string    `json:"password,omitempty"`
}

// IsZero reports whether the proxy is unset or explicitly "none".
func (p *Proxy) IsZero() bool {
	return p == nil || p.Type == "" || p.Type == ProxyNone
}

// Instance represents one managed browser identity with its own
// profile directory and proxy configuration.
type Instance struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	ProfilePath   string        `json:"profile_path"`
	Proxy         *Proxy        `json:"proxy,omitempty"`
	AutoStart     bool          `json:"auto_start"`
	HomeURL       string        `json:"home_url,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	Version       int           `json:"version"`
	DesiredState  DesiredState  `json:"desired_state"`
	ObservedState ObservedState `json:"observed_state"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without racing the store.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	out := *i
	if i.Proxy != nil {
		p := *i.Proxy
		out.Proxy = &p
	}
	return &out
}

// Stats contains controller-wide instance counts for health reporting.
type Stats struct {
	Total    int `json:"total"`
	Running  int `json:"running"`
	Crashed  int `json:"crashed"`
	Stopped  int `json:"stopped"`
	Starting int `json:"starting"`
}
