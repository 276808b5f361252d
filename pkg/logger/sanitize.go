package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redacted = "***"

var secretKeys = []string{
	"password",
	"token",
	"secret",
	"authorization",
	"cookie",
}

// Redemption codes are bearer credentials at the counter, so only their
// last two digits reach the logs.
var codeKeys = []string{
	"code",
	"redemption_code",
}

func SanitizeFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}

	sanitized := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if isSecretKey(field.Key) {
			sanitized = append(sanitized, zap.String(field.Key, redacted))
			continue
		}

		encoded := encodeField(field)
		value, ok := encoded[field.Key]
		if !ok {
			sanitized = append(sanitized, field)
			continue
		}
		sanitized = append(sanitized, zap.Any(field.Key, sanitizeValue(field.Key, value)))
	}
	return sanitized
}

// MaskCode keeps the last two characters of a redemption code.
func MaskCode(code string) string {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) <= 2 {
		return redacted
	}
	return strings.Repeat("*", len(trimmed)-2) + trimmed[len(trimmed)-2:]
}

func sanitizeValue(key string, value interface{}) interface{} {
	if isSecretKey(key) {
		return redacted
	}

	switch typed := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			out[k] = sanitizeValue(k, v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(typed))
		for _, item := range typed {
			out = append(out, sanitizeValue(key, item))
		}
		return out
	case string:
		if isCodeKey(key) {
			return MaskCode(typed)
		}
		return typed
	default:
		return typed
	}
}

func encodeField(field zap.Field) map[string]interface{} {
	enc := zapcore.NewMapObjectEncoder()
	field.AddTo(enc)
	return enc.Fields
}

func normalizeKey(key string) string {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	return strings.ReplaceAll(normalized, "_", "")
}

func isSecretKey(key string) bool {
	normalized := normalizeKey(key)
	if normalized == "" {
		return false
	}
	for _, token := range secretKeys {
		if strings.Contains(normalized, normalizeKey(token)) {
			return true
		}
	}
	return false
}

func isCodeKey(key string) bool {
	normalized := normalizeKey(key)
	for _, token := range codeKeys {
		if normalized == normalizeKey(token) {
			return true
		}
	}
	return false
}
