package whatsapp

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render substitutes {{token}} placeholders. Token names are case-insensitive;
// unknown tokens are left in place so a typo is visible rather than silent.
func Render(template string, vars map[string]string) string {
	lowered := make(map[string]string, len(vars))
	for k, v := range vars {
		lowered[strings.ToLower(k)] = v
	}
	out := tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.ToLower(tokenPattern.FindStringSubmatch(match)[1])
		if v, ok := lowered[name]; ok {
			return v
		}
		return match
	})
	return strings.TrimSpace(out)
}
