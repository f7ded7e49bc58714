package llmparse

import (
	"regexp"
	"strings"
)

var (
	fenceRe         = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*\\n?(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	smartQuotes     = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// StripFences returns the body of the first markdown code fence, or s trimmed when there is none.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	// unterminated fence
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
	}
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// outerSpan returns the text between the first open and the last close bracket, inclusive.
func outerSpan(s string, lo, hi byte) (string, bool) {
	start := strings.IndexByte(s, lo)
	end := strings.LastIndexByte(s, hi)
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// balancedSpan returns the first bracket-balanced block starting at the first open bracket.
// Brackets inside JSON strings are ignored.
func balancedSpan(s string, lo, hi byte) (string, bool) {
	start := strings.IndexByte(s, lo)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case lo:
			depth++
		case hi:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// repair fixes the formatting slips models make most often.
func repair(s string) string {
	s = smartQuotes.Replace(s)
	return trailingCommaRe.ReplaceAllString(s, "$1")
}
