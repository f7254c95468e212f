package utils

import (
	"strings"
	"unicode/utf8"

	"github.com/firedesk/firedesk/internal/shared/types"
)

// String length limits
const (
	MaxNameLength     = 128
	MaxNotesLength    = 1024
	MaxCredArgLength  = 256
	MaxHomeURLLength  = 2048
	MaxProxyHostParts = 255
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return types.Invalid(fieldName, "is required")
	}

	if value == "" && !required {
		return nil // Optional field, empty is OK
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return types.Invalid(fieldName, "too short")
	}
	if length > maxLen {
		return types.Invalid(fieldName, "too long")
	}

	// Check for null bytes (security issue)
	if strings.Contains(value, "\x00") {
		return types.Invalid(fieldName, "contains invalid characters")
	}

	return nil
}

// ValidateName validates an instance name
func ValidateName(name string) error {
	return ValidateString(strings.TrimSpace(name), "name", 1, MaxNameLength, true)
}

// ValidateNotes validates the free-form notes field
func ValidateNotes(notes string) error {
	return ValidateString(notes, "notes", 0, MaxNotesLength, false)
}

// ValidateHomeURL validates the optional start page URL
func ValidateHomeURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if err := ValidateString(raw, "home_url", 1, MaxHomeURLLength, false); err != nil {
		return err
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return types.Invalid("home_url", "must start with http:// or https://")
	}
	return nil
}

// ValidateProxy validates a proxy definition. A nil proxy or type "none"
// is valid and means direct connection.
func ValidateProxy(p *types.Proxy) error {
	if p.IsZero() {
		return nil
	}

	switch p.Type {
	case types.ProxyHTTP, types.ProxyHTTPS, types.ProxySOCKS5:
	default:
		return types.Invalid("proxy.type", "must be one of none, http, https, socks5")
	}

	host := strings.TrimSpace(p.Host)
	if host == "" {
		return types.Invalid("proxy.host", "is required")
	}
	if len(host) > MaxProxyHostParts {
		return types.Invalid("proxy.host", "too long")
	}
	if strings.ContainsAny(host, " \t\n\x00") {
		return types.Invalid("proxy.host", "contains invalid characters")
	}

	if p.Port < 1 || p.Port > 65535 {
		return types.Invalid("proxy.port", "must be between 1 and 65535")
	}

	if err := ValidateString(p.Username, "proxy.username", 0, MaxCredArgLength, false); err != nil {
		return err
	}
	if err := ValidateString(p.Password, "proxy.password", 0, MaxCredArgLength, false); err != nil {
		return err
	}

	return nil
}

// ValidateCreate validates a full create payload
func ValidateCreate(req *types.CreateRequest) error {
	if err := ValidateName(req.Name); err != nil {
		return err
	}
	if err := ValidateProxy(req.Proxy); err != nil {
		return err
	}
	if err := ValidateHomeURL(req.HomeURL); err != nil {
		return err
	}
	return ValidateNotes(req.Notes)
}

// ValidateUpdate validates a partial update payload
func ValidateUpdate(req *types.UpdateRequest) error {
	if req.IsEmpty() {
		return types.Invalid("patch", "no fields to update")
	}
	if req.Name != nil {
		if err := ValidateName(*req.Name); err != nil {
			return err
		}
	}
	if req.Proxy != nil {
		if err := ValidateProxy(req.Proxy); err != nil {
			return err
		}
	}
	if req.HomeURL != nil {
		if err := ValidateHomeURL(*req.HomeURL); err != nil {
			return err
		}
	}
	if req.Notes != nil {
		if err := ValidateNotes(*req.Notes); err != nil {
			return err
		}
	}
	return nil
}
