package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"mercator-hq/pulse/pkg/config"
)

// Redactor masks caller identifiers and secrets in log attributes.
type Redactor struct {
	patterns      []*redactPattern
	redactCallers bool
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternBearerToken = "bearer_token"
	PatternPassword    = "password"
	PatternRedisURL    = "redis_url"
)

// callerKeys are attribute keys carrying caller identifiers.
var callerKeys = map[string]struct{}{
	"caller":    {},
	"caller_id": {},
	"callerId":  {},
}

var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "token", "authorization",
}

// NewRedactor creates a Redactor with the built-in patterns plus custom ones.
// Invalid custom patterns are skipped; config validation rejects them earlier.
func NewRedactor(redactCallers bool, customPatterns []config.RedactPattern) *Redactor {
	r := &Redactor{redactCallers: redactCallers}

	r.add(PatternBearerToken, `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer ***")
	r.add(PatternPassword, `(password|passwd|pwd)[:=]\s*[^\s]+`, "$1: ***")
	r.add(PatternRedisURL, `(rediss?://[^:/@\s]*:)[^@\s]+@`, "${1}***@")

	for _, p := range customPatterns {
		r.add(p.Name, p.Pattern, p.Replacement)
	}

	return r
}

func (r *Redactor) add(name, pattern, replacement string) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return
	}
	r.patterns = append(r.patterns, &redactPattern{
		name:        name,
		regex:       regex,
		replacement: replacement,
	})
}

// RedactString applies every pattern to value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactAttr returns a redacted copy of a.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			out[i] = r.RedactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	if _, ok := callerKeys[a.Key]; ok && r.redactCallers {
		return slog.String(a.Key, RedactCaller(a.Value.String()))
	}
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, "***")
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	}
	return a
}

func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// RedactCaller masks a caller identifier, keeping a short prefix.
func RedactCaller(id string) string {
	if len(id) <= 4 {
		return "***"
	}
	return id[:4] + "***"
}

// redactHandler redacts record and handler attributes before passing them on.
type redactHandler struct {
	next     slog.Handler
	redactor *Redactor
}

func newRedactHandler(next slog.Handler, redactor *Redactor) slog.Handler {
	return &redactHandler{next: next, redactor: redactor}
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redactor.RedactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactor.RedactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactor.RedactAttr(a)
	}
	return &redactHandler{next: h.next.WithAttrs(redacted), redactor: h.redactor}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}
