package logging

import (
	"log/slog"
	"regexp"
	"slices"
	"strings"
)

// Redacted replaces a masked value.
const Redacted = "***"

// Redactor masks credentials in log attributes: attendee API keys, upstream
// endpoint keys, bearer tokens and provider secret keys.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

var (
	sensitiveFragments = []string{
		"api_key", "api-key", "apikey",
		"endpoint_key", "authorization",
		"secret", "password",
	}
	sensitiveNames = []string{"token", "bearer", "principal", "key"}
)

// NewRedactor creates a redactor with the built-in patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: []redactPattern{
		{regexp.MustCompile(`sk-[A-Za-z0-9_\-]{8,}`), "sk-" + Redacted},
		{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer " + Redacted},
		{regexp.MustCompile(`(?i)(api[-_]?key)([=:]\s*)[^\s&"]+`), "$1$2" + Redacted},
	}}
}

// RedactString masks credentials embedded in free text.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactAttr masks an attribute by key or by content. Groups are walked.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			out[i] = r.RedactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, RedactAPIKey(a.Value.String()))
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveFragments {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return slices.Contains(sensitiveNames, lower)
}

// RedactAPIKey keeps a short prefix of a key for correlation.
func RedactAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return Redacted
	}
	return apiKey[:4] + Redacted
}
