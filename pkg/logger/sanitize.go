package logger

import "strings"

// sensitive query parameters that must never reach the request log
var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"session",
	"code",
	"auth",
}

// SanitizeQueryString reports whether a raw query string carries a
// sensitive parameter and must be redacted from logs.
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}

// MaskIdentifier keeps the first and last character of an identifier for
// correlation while hiding the rest.
func MaskIdentifier(identifier string) string {
	if len(identifier) <= 2 {
		return "**"
	}
	return string(identifier[0]) + strings.Repeat("*", len(identifier)-2) + string(identifier[len(identifier)-1])
}
