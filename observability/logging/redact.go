package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces sensitive values in log lines.
const RedactedValue = "[REDACTED]"

var plainKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"operation": {},
	"account":   {},
	"loan_id":   {},
	"circle_id": {},
}

// IsPlain reports whether values logged under key may be written unmasked.
func IsPlain(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField redacts value unless key is known to be safe. Empty values pass
// through.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsPlain(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskURL keeps the scheme, host and path of a connection string or endpoint
// and drops credentials and query parameters. Values that do not parse as a
// URL with a host, such as a sqlite file path, are returned unchanged.
func MaskURL(key, raw string) slog.Attr {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		if strings.Contains(raw, "password=") {
			return slog.String(key, RedactedValue)
		}
		return slog.String(key, raw)
	}
	return slog.String(key, parsed.Scheme+"://"+parsed.Host+parsed.Path)
}
