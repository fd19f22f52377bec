package domain

import (
	"regexp"
	"strings"
)

var isbnPattern = regexp.MustCompile(`^(\d{9}[\dX]|\d{13})$`)

// NormalizeISBN strips hyphens and spaces and uppercases the check digit.
// Returns "" when the result is not a valid ISBN-10 or ISBN-13 shape.
func NormalizeISBN(isbn string) string {
	if isbn == "" {
		return ""
	}
	normalized := strings.ToUpper(strings.TrimSpace(isbn))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, " ", "")
	if !isbnPattern.MatchString(normalized) {
		return ""
	}
	return normalized
}

// ClassifyISBN normalizes a bare ISBN and slots it by length.
func ClassifyISBN(isbn string) (isbn10, isbn13 string) {
	normalized := NormalizeISBN(isbn)
	switch len(normalized) {
	case 10:
		return normalized, ""
	case 13:
		return "", normalized
	default:
		return "", ""
	}
}
