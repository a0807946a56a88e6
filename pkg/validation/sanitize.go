package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"
)

var (
	controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

	// regexp is RE2: matching time is linear in the input for every pattern here.
	injectionPatterns = []*regexp.Regexp{
		// SQL
		regexp.MustCompile(`(?i)\b(union\s+(all\s+)?select|insert\s+into|delete\s+from|drop\s+(table|database|schema)|truncate\s+table|alter\s+table|update\s+\w+\s+set|exec(ute)?\s*\(|xp_cmdshell|waitfor\s+delay|information_schema)\b`),
		regexp.MustCompile(`(?i)\bor\s+\d+\s*=\s*\d+`),
		regexp.MustCompile(`/\*|\*/`),
		// command
		regexp.MustCompile(`\$\(|\$\{|&&|\|\|`),
		regexp.MustCompile(`(?i)\b(rm\s+-rf|/bin/(ba)?sh|nc\s+-e|chmod\s+[0-7]{3,4}|wget\s+https?|curl\s+https?)\b`),
		// XSS
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script\s*>`),
		regexp.MustCompile(`(?i)<\s*/?\s*(script|iframe|object|embed|svg|img|link|meta|style)\b[^>]*>?`),
		regexp.MustCompile(`(?i)\b(javascript|vbscript)\s*:`),
		regexp.MustCompile(`(?i)\bon(load|error|click|mouseover|focus|blur|submit|change|keydown|keyup)\s*=`),
		// LDAP
		regexp.MustCompile(`\(\s*[|&!]\s*\(`),
		regexp.MustCompile(`\*\s*\)\s*\(`),
	}

	dangerousChars = strings.NewReplacer(
		"--", "",
		"<", "",
		">", "",
		`"`, "",
		"'", "",
		"&", "",
		"`", "",
		"$", "",
		`\`, "",
		";", "",
		"|", "",
	)
)

// SanitizeString coerces value to a string and strips control characters,
// injection patterns and the dangerous character blacklist, then truncates
// to maxLength runes and trims surrounding whitespace. The result never
// exceeds maxLength runes.
func SanitizeString(value interface{}, maxLength int) string {
	if maxLength < 0 {
		maxLength = 0
	}

	text, err := cast.ToStringE(value)
	if err != nil {
		text = fmt.Sprint(value)
	}
	text = strings.ToValidUTF8(text, "")

	// Passes only remove text and the first one truncates to maxLength runes,
	// so the loop reaches a fixed point within maxLength+1 passes.
	for {
		next := sanitizePass(text, maxLength)
		if next == text {
			break
		}
		text = next
	}

	return truncateRunes(text, maxLength)
}

func sanitizePass(text string, maxLength int) string {
	text = controlCharPattern.ReplaceAllString(text, "")
	for _, pattern := range injectionPatterns {
		text = pattern.ReplaceAllString(text, "")
	}
	text = dangerousChars.Replace(text)
	text = truncateRunes(text, maxLength)
	return strings.TrimSpace(text)
}

func truncateRunes(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	if utf8.RuneCountInString(text) <= maxLength {
		return text
	}
	count := 0
	for i := range text {
		if count == maxLength {
			return text[:i]
		}
		count++
	}
	return text
}
