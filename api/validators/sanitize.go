package validators

import (
	"strings"
	"unicode"
)

// SanitizeText collapses runs of whitespace, drops control characters and
// truncates to maxLen runes. A maxLen of zero disables truncation.
func SanitizeText(input string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(input))
	space := false
	count := 0
	for _, r := range strings.TrimSpace(input) {
		if maxLen > 0 && count >= maxLen {
			break
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
			count++
			if maxLen > 0 && count >= maxLen {
				break
			}
		}
		space = false
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// SanitizeOptional applies SanitizeText to an optional field and maps blank
// values to nil.
func SanitizeOptional(input *string, maxLen int) *string {
	if input == nil {
		return nil
	}
	cleaned := SanitizeText(*input, maxLen)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
