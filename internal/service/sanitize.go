package service

import (
	"strings"
	"unicode/utf8"

	"paidwall/internal/apperrors"
)

// Escaping at the submission boundary is the only markup defense the wall
// has; stored bodies are rendered verbatim. The slash is included so stored
// text can never close a tag or start a path-like payload.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// SanitizeBody bounds and escapes an untrusted message body. Truncation
// counts raw runes and happens before escaping, so the bound applies to
// what the submitter typed, not to the escaped expansion.
func SanitizeBody(raw string, maxLen int) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", apperrors.ErrEmptyBody
	}

	if !utf8.ValidString(raw) {
		return "", apperrors.ErrInvalidBody
	}

	return htmlEscaper.Replace(truncateRunes(raw, maxLen)), nil
}

// SanitizeAuthor bounds and escapes an untrusted author name, substituting
// the default when absent.
func SanitizeAuthor(raw string, maxLen int, defaultAuthor string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultAuthor, nil
	}

	if !utf8.ValidString(raw) {
		return "", apperrors.ErrInvalidAuthor
	}

	return htmlEscaper.Replace(truncateRunes(raw, maxLen)), nil
}

func truncateRunes(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}

	runes := []rune(s)

	return string(runes[:maxLen])
}
