package transcripts

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// controlToken matches recognizer markup such as <|endoftext|> or <|0.00|>.
var controlToken = regexp.MustCompile(`<\|.*?\|>`)

// Normalize strips recognizer control tokens and surrounding whitespace.
func Normalize(text string) string {
	text = controlToken.ReplaceAllString(text, "")
	return strings.TrimSpace(norm.NFC.String(text))
}

// charCount is the length used by every threshold in this package.
func charCount(s string) int {
	return utf8.RuneCountInString(s)
}
