package domain

import (
	"regexp"
	"strings"
)

// Threat family names. These are recorded in security event details and
// consumed by the activity analyzer; they are never echoed back to callers.
const (
	ThreatScriptInjection  = "script_injection"
	ThreatSQLInjection     = "sql_injection"
	ThreatPathTraversal    = "path_traversal"
	ThreatCommandInjection = "command_injection"
	ThreatNullByte         = "null_byte"
)

// threatPatterns maps each family to the expression that detects it. The
// families are independent: an input is scanned against all of them and
// every match is reported.
var threatPatterns = []struct {
	family  string
	pattern *regexp.Regexp
}{
	{ThreatScriptInjection, regexp.MustCompile(`(?i)(<\s*script|javascript\s*:|on\w+\s*=|<\s*iframe|<\s*object)`)},
	{ThreatSQLInjection, regexp.MustCompile(`(?i)('|%27|--|/\*|\*/|\b(union|select|insert|update|delete|drop|create|alter|exec|execute)\b)`)},
	{ThreatPathTraversal, regexp.MustCompile(`(?i)(\.\./|\.\.\\|%2e%2e%2f|%2e%2e%5c|%252e)`)},
	{ThreatCommandInjection, regexp.MustCompile("[;&|`$()]")},
}

// Scan checks an input against every threat pattern family and returns the
// names of the families that matched. An empty result means no known
// injection pattern was found; it does not mean the input is well formed.
func Scan(input string) []string {
	var matched []string
	for _, tp := range threatPatterns {
		if tp.pattern.MatchString(input) {
			matched = append(matched, tp.family)
		}
	}
	if strings.ContainsRune(input, 0) || strings.Contains(strings.ToLower(input), "%00") {
		matched = append(matched, ThreatNullByte)
	}
	return matched
}
