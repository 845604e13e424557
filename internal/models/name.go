package models

import "strings"

// SplitFullName splits a display name into nombre/apellido: the first token is
// the nombre, the remainder is the apellido, empty string when there is no
// remainder. This is a known heuristic, not a robust name parser.
func SplitFullName(name string) (nombre, apellido string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ""
	}

	parts := strings.SplitN(trimmed, " ", 2)
	nombre = parts[0]
	if len(parts) > 1 {
		apellido = strings.TrimSpace(parts[1])
	}
	return nombre, apellido
}
