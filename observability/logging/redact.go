package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// Keys carrying oracle or provider credentials must never reach a log sink.
var sensitiveKeys = map[string]struct{}{
	"oracle_private_key": {},
	"oracle_key":         {},
	"api_key":            {},
	"bearer_token":       {},
	"authorization":      {},
}

// IsSensitive reports whether values under the provided key must be masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns a slog.Attr whose value is redacted when the key is
// sensitive. Empty values pass through unchanged to avoid log noise.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSensitive(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
