package option

import "strings"

const (
	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// ValidateSortOrder normalizes a direction to ASC or DESC, defaulting to DESC.
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == SortAsc {
		return SortAsc
	}
	return SortDesc
}

// ValidateSortField maps a client-facing field through the whitelist to its SQL expression.
// Unknown or empty fields resolve to def.
func ValidateSortField(field string, allowed map[string]string, def string) string {
	trimmed := strings.TrimSpace(field)
	if trimmed == "" {
		return def
	}
	if expr, ok := allowed[trimmed]; ok {
		return expr
	}
	return def
}
