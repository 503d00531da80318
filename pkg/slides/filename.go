package slides

import (
	"strings"
	"time"
)

// Extension is the fixed suffix of exported documents
const Extension = "pdf"

// Sanitize replaces every character outside [A-Za-z0-9] with '_'
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Filename builds {sanitized_name}_{YYYY-MM-DD}.pdf using the UTC date of t
func Filename(dashboardName string, t time.Time) string {
	return Sanitize(dashboardName) + "_" + t.UTC().Format(time.DateOnly) + "." + Extension
}
