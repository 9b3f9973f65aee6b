package logger

import "strings"

// MaskAPIKey masks provider credentials, preserving only the last 4
// characters so log lines remain correlatable.
func MaskAPIKey(value string) string {
	return maskLast4(value)
}

// MaskPayeeID masks external payee account identifiers.
func MaskPayeeID(value string) string {
	return maskLast4(value)
}

func maskLast4(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****" + value
	}
	return "****" + value[len(value)-4:]
}
