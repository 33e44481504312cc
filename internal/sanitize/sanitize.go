// Package sanitize provides functions for turning service keys into safe identifiers.
package sanitize

import "strings"

// EnvKey converts a service key to an environment variable name fragment.
// Letters are upper-cased and every character outside [A-Z0-9_] becomes "_",
// so "my-db.primary" yields "MY_DB_PRIMARY". A leading digit is prefixed with "_".
func EnvKey(key string) string {
	var sb strings.Builder
	sb.Grow(len(key) + 1)

	for i, r := range strings.ToUpper(key) {
		switch {
		case r >= 'A' && r <= 'Z', r == '_':
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
