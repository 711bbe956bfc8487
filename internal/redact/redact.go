// Package redact masks secrets and PII in extracted text before it leaves
// the process boundary. Every digest input passes through here ahead of
// summarization; downstream stages assume redaction already happened.
package redact

import (
	"regexp"
	"strings"
)

// Placeholder replaces matched secret values.
const Placeholder = "***REDACTED***"

// rule pairs a compiled pattern with its replacement template.
type rule struct {
	pattern     *regexp.Regexp
	replacement string
	description string
}

// rules apply in order. Replacements preserve the surrounding assignment
// structure so summarization still sees syntactic shape, and each rule is
// a fixed point: re-applying it to its own output changes nothing.
var rules = []rule{
	{
		pattern:     regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|access[_-]?token|auth[_-]?token|private[_-]?key)(\s*[:=]\s*)"[^"]*"`),
		replacement: `${1}${2}"` + Placeholder + `"`,
		description: "credential assignment (double-quoted)",
	},
	{
		pattern:     regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|access[_-]?token|auth[_-]?token|private[_-]?key)(\s*[:=]\s*)'[^']*'`),
		replacement: `${1}${2}'` + Placeholder + `'`,
		description: "credential assignment (single-quoted)",
	},
	{
		pattern:     regexp.MustCompile(`(?i)(password|passwd|pwd|secret|token|credential)(\s*[:=]\s*)"[^"]*"`),
		replacement: `${1}${2}"` + Placeholder + `"`,
		description: "password assignment (double-quoted)",
	},
	{
		pattern:     regexp.MustCompile(`(?i)(password|passwd|pwd|secret|token|credential)(\s*[:=]\s*)'[^']*'`),
		replacement: `${1}${2}'` + Placeholder + `'`,
		description: "password assignment (single-quoted)",
	},
	{
		// case-sensitive on purpose: lowercase assignments are handled by
		// the quote-preserving rules above
		pattern:     regexp.MustCompile(`(?m)^((?:API_KEY|SECRET_KEY|PASSWORD|DB_PASSWORD|AUTH_TOKEN|ACCESS_TOKEN|PRIVATE_KEY)\s*=\s*).+$`),
		replacement: `${1}` + Placeholder,
		description: "env-style secret line",
	},
	{
		pattern:     regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		replacement: "***.***.***.***",
		description: "IPv4 literal",
	},
	{
		pattern:     regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		replacement: "***@***.***",
		description: "email address",
	},
}

// Redact applies every rule in order. It is deterministic and idempotent:
// Redact(Redact(s)) == Redact(s).
func Redact(s string) string {
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// sensitiveExtensions always get redacted regardless of content.
var sensitiveExtensions = map[string]bool{
	".env": true, ".yml": true, ".yaml": true, ".ini": true,
	".cfg": true, ".conf": true, ".toml": true,
}

// codeExtensions are source files whose content is also redacted.
var codeExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".java": true, ".go": true, ".rb": true, ".php": true,
}

// File redacts content according to the file's path. Config files and
// source files are redacted; other content passes through untouched.
func File(path, content string) string {
	lower := strings.ToLower(path)

	ext := ""
	if i := strings.LastIndex(lower, "."); i >= 0 {
		ext = lower[i:]
	}

	if sensitiveExtensions[ext] || strings.HasSuffix(lower, ".env") || strings.Contains(lower, "/.env") {
		return Redact(content)
	}
	if codeExtensions[ext] {
		return Redact(content)
	}
	return content
}
