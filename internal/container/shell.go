// File: internal/container/shell.go
package container

import "strings"

// ShellQuote wraps s in single quotes for safe interpolation into an sh -c
// command line. Embedded single quotes are closed, escaped, and reopened.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
