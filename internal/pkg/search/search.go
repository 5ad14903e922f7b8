// Package search holds small helpers shared by the postgres/sqlite
// repositories and the HTTP search handlers: an ILIKE escape and a
// default timeout so a pathological keyword list cannot hang a query.
package search

import (
	"strings"
	"time"
)

// DefaultSearchTimeout bounds GET /search queries (spec.md §6).
const DefaultSearchTimeout = 5 * time.Second

// EscapeILIKE escapes ILIKE's wildcard characters in a user-supplied
// keyword and wraps it for a substring match.
func EscapeILIKE(keyword string) string {
	escaped := strings.NewReplacer(
		`\`, `\\`,
		`%`, `\%`,
		`_`, `\_`,
	).Replace(keyword)
	return "%" + escaped + "%"
}
