package summary

import (
	"fmt"
	"regexp"
	"strings"
)

// NormalizePattern roots a path pattern at "$": ".x" and "x" become "$.x".
func NormalizePattern(p string) string {
	switch {
	case strings.HasPrefix(p, "$"):
		return p
	case strings.HasPrefix(p, "."):
		return "$" + p
	default:
		return "$." + p
	}
}

// CompilePattern turns an ignore-path glob into an anchored matcher. "[*]"
// matches any array index, "*" any run of characters, "?" one character.
func CompilePattern(p string) (*regexp.Regexp, error) {
	p = NormalizePattern(p)

	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(p); {
		switch {
		case strings.HasPrefix(p[i:], "[*]"):
			b.WriteString(`\[\d+\]`)
			i += 3
		case p[i] == '*':
			b.WriteString(".*")
			i++
		case p[i] == '?':
			b.WriteString(".")
			i++
		default:
			j := i + 1
			for j < len(p) && p[j] != '*' && p[j] != '?' && !strings.HasPrefix(p[j:], "[*]") {
				j++
			}
			b.WriteString(regexp.QuoteMeta(p[i:j]))
			i = j
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile ignore path %q: %w", p, err)
	}
	return re, nil
}
