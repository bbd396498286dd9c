package logging

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
)

// RedactedValue replaces sensitive values in logs.
const RedactedValue = "[REDACTED]"

// Request headers that may be logged verbatim.
var headerAllowlist = map[string]struct{}{
	"content-type":    {},
	"user-agent":      {},
	"x-request-id":    {},
	"x-caller":        {},
	"x-forwarded-for": {},
	"traceparent":     {},
}

// IsAllowlisted reports whether header key may be logged unmasked.
func IsAllowlisted(key string) bool {
	_, ok := headerAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue returns the placeholder for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns an attribute that hides value unless key is allowlisted.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}

// HeaderAttrs renders h as a log group, masking credentials such as the
// Authorization bearer token.
func HeaderAttrs(h http.Header) slog.Attr {
	keys := make([]string, 0, len(h))
	for key := range h {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, MaskField(strings.ToLower(key), strings.Join(h.Values(key), ",")))
	}
	return slog.Group("headers", attrs...)
}
