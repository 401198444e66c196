// Package core holds the price observation domain: records, predicates,
// the derived catalog and overview shapes, and the value parsing rules
// shared by every store and source.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParsePrice parses a raw stored price strictly. Surrounding whitespace is
// ignored; anything else that is not a finite number is ErrMalformedValue.
//
// Examples:
//
//	ParsePrice("1250")   -> 1250, nil
//	ParsePrice(" 3.5 ")  -> 3.5, nil
//	ParsePrice("12abc")  -> 0, ErrMalformedValue
//	ParsePrice("")       -> 0, ErrMalformedValue
func ParsePrice(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty price", ErrMalformedValue)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: price %q", ErrMalformedValue, raw)
	}
	return v, nil
}

// CoercePrice is ParsePrice with failures mapped to 0. Coerced zeros take
// part in averages like any other value.
func CoercePrice(raw string) float64 {
	v, err := ParsePrice(raw)
	if err != nil {
		return 0
	}
	return v
}

// FormatPrice renders a number the way it is stored in the raw price column.
func FormatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	time.DateTime,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"1/2/2006",
	"01-02-06",
}

// ParseDate accepts ISO dates plus the layouts spreadsheets commonly export.
func ParseDate(raw string) (Date, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Date{}, fmt.Errorf("%w: empty date", ErrMalformedValue)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t.Year(), int(t.Month()), t.Day()), nil
		}
	}
	return Date{}, fmt.Errorf("%w: date %q", ErrMalformedValue, raw)
}
