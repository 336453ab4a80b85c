// Package redact strips sensitive material from strings before they reach
// logs or error responses: database URLs, bearer tokens, API keys, and raw
// SQL fragments surfaced by driver errors.
package redact

import "regexp"

// Placeholder is substituted for every redacted fragment.
const Placeholder = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	// Connection strings with embedded credentials.
	regexp.MustCompile(`(?i)postgres(?:ql)?://[^@\s]+@[^\s]+`),

	// Three-part JWTs.
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`),

	// key=value / key: value credential assignments.
	regexp.MustCompile(`(?i)(?:api[_-]?key|secret|token|password|authorization)['"\s:=]+[A-Za-z0-9_\-.~+/]{8,}`),

	// SQL fragments leaked through driver errors.
	regexp.MustCompile(`(?i)(?:SELECT|INSERT|UPDATE|DELETE)\s[\s\w,.*()='"$]+(?:FROM|INTO|SET|WHERE)[\s\w,.*()='"$]*`),
}

// String replaces every sensitive fragment in s with the placeholder.
func String(s string) string {
	for _, pattern := range sensitivePatterns {
		s = pattern.ReplaceAllString(s, Placeholder)
	}
	return s
}

// Error redacts an error's message. Returns an empty string for nil.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
