package utils

import (
	"strings"
	"time"
	"unicode"
)

// Placeholder strings extractors routinely emit for "no value".
var emptyPlaceholders = map[string]bool{
	"": true, "NA": true, "N/A": true, "NAN": true, "NULL": true, "NONE": true,
}

// IsEmptyValue reports whether a nullable string field carries no usable
// value (nil, blank, or a known placeholder).
func IsEmptyValue(s *string) bool {
	if s == nil {
		return true
	}
	return emptyPlaceholders[strings.ToUpper(strings.TrimSpace(*s))]
}

// CleanNumericString strips currency prefixes, thousand separators and
// stray spaces from a formatted amount ("MMK 20,000", "$1,234.50") so it
// can be handed to the decimal parser. A leading minus sign survives.
func CleanNumericString(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	negative := false
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9' || r == '.':
			b.WriteRune(r)
		case r == '-':
			if b.Len() == 0 {
				negative = true
			}
		case r == ',' || r == '$' || unicode.IsSpace(r) || unicode.IsLetter(r):
			// separators and currency markers are dropped
		default:
			// anything else makes the value non-numeric
			return s
		}
	}
	if b.Len() == 0 {
		return s
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}

// Date layouts seen in real quotation documents, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"2-Jan-06",
	"2-Jan-2006",
	"02/01/2006",
	"20060102",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ParseFlexibleDate parses a date string in any of the supported layouts.
func ParseFlexibleDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func UniqueSlice[T comparable](values []T) []T {
	seen := make(map[T]bool, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func StringPtr(s string) *string {
	return &s
}
