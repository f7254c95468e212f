package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/firedesk/firedesk/internal/infrastructure/logging"
	"github.com/firedesk/firedesk/internal/shared/types"
)

const userJSName = "user.js"

// Configurator materializes browser profile directories and keeps their
// proxy preferences in sync with the instance record. It only ever writes
// under a single instance's profile path.
type Configurator struct {
	logger *logging.Logger
}

// New creates a configurator.
func New(logger *logging.Logger) *Configurator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Configurator{logger: logger}
}

// Provision ensures the profile directory exists with a valid baseline
// configuration. Safe to call repeatedly.
func (c *Configurator) Provision(inst *types.Instance) error {
	if err := os.MkdirAll(inst.ProfilePath, 0o755); err != nil {
		return &types.ConfigError{ProfilePath: inst.ProfilePath, Err: err}
	}
	return c.ApplyProxy(inst)
}

// ApplyProxy rewrites the proxy preference subset of the profile's user.js
// to match the instance's proxy. The output is deterministic: reapplying
// the same configuration produces byte-identical content. Firefox reads
// user.js at startup only, so the controller never calls this while the
// instance is running.
func (c *Configurator) ApplyProxy(inst *types.Instance) error {
	if err := os.MkdirAll(inst.ProfilePath, 0o755); err != nil {
		return &types.ConfigError{ProfilePath: inst.ProfilePath, Err: err}
	}

	content := renderUserJS(inst.Proxy)
	path := filepath.Join(inst.ProfilePath, userJSName)

	// Skip the write when nothing changed, keeping mtimes stable.
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, content) {
		return nil
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return &types.ConfigError{ProfilePath: inst.ProfilePath, Err: err}
	}

	c.logger.Debug("rewrote proxy prefs",
		zap.String("instance_id", inst.ID),
		zap.String("path", path),
	)
	return nil
}

// Remove deletes the profile directory. The id is never reused, so the
// path can never be claimed by a later instance.
func (c *Configurator) Remove(inst *types.Instance) error {
	if err := os.RemoveAll(inst.ProfilePath); err != nil {
		return &types.ConfigError{ProfilePath: inst.ProfilePath, Err: err}
	}
	return nil
}

// renderUserJS produces the full user.js for the given proxy. Only the
// proxy pref subset is managed; Firefox persists everything else in
// prefs.js inside the same profile.
func renderUserJS(proxy *types.Proxy) []byte {
	var buf bytes.Buffer
	buf.WriteString("// Generated by firedesk, do not edit\n")

	if proxy.IsZero() {
		writePref(&buf, "network.proxy.type", 0)
		writePref(&buf, "network.proxy.no_proxies_on", "")
		return buf.Bytes()
	}

	writePref(&buf, "network.proxy.type", 1)
	writePref(&buf, "network.proxy.no_proxies_on", "")

	switch proxy.Type {
	case types.ProxyHTTP:
		writePref(&buf, "network.proxy.http", proxy.Host)
		writePref(&buf, "network.proxy.http_port", proxy.Port)
		writePref(&buf, "network.proxy.ssl", proxy.Host)
		writePref(&buf, "network.proxy.ssl_port", proxy.Port)
	case types.ProxyHTTPS:
		writePref(&buf, "network.proxy.ssl", proxy.Host)
		writePref(&buf, "network.proxy.ssl_port", proxy.Port)
	case types.ProxySOCKS5:
		writePref(&buf, "network.proxy.socks", proxy.Host)
		writePref(&buf, "network.proxy.socks_port", proxy.Port)
		writePref(&buf, "network.proxy.socks_version", 5)
		writePref(&buf, "network.proxy.socks_remote_dns", true)
	}

	return buf.Bytes()
}

func writePref(buf *bytes.Buffer, key string, value interface{}) {
	var rendered string
	switch v := value.(type) {
	case bool:
		if v {
			rendered = "true"
		} else {
			rendered = "false"
		}
	case int:
		rendered = fmt.Sprintf("%d", v)
	default:
		// JSON encoding matches Firefox's expected string quoting.
		data, _ := json.Marshal(v)
		rendered = string(data)
	}
	fmt.Fprintf(buf, "user_pref(%q, %s);\n", key, rendered)
}
