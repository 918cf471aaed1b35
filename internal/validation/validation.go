package validation

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Violations maps a field name to a machine readable error code.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Add records code for field unless the field already has a violation.
func (v Violations) Add(field, code string) {
	if _, ok := v[field]; !ok {
		v[field] = code
	}
}

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "required")
	}
}

func MinLength(field, value string, n int, v Violations) {
	if utf8.RuneCountInString(value) < n {
		v.Add(field, "too_short")
	}
}

func MaxLength(field, value string, n int, v Violations) {
	if utf8.RuneCountInString(value) > n {
		v.Add(field, "too_long")
	}
}

// MaxBytes bounds the encoded size of value rather than its rune count.
func MaxBytes(field, value string, n int, v Violations) {
	if len(value) > n {
		v.Add(field, "too_long")
	}
}

// Email accepts a bare address (no display name).
func Email(field, value string, v Violations) {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != strings.TrimSpace(value) {
		v.Add(field, "invalid_email")
	}
}

func NonNegativeInt(field string, val int, v Violations) {
	if val < 0 {
		v.Add(field, "out_of_range")
	}
}

// RangeFloat checks minVal <= val < maxVal.
func RangeFloat(field string, val, minVal, maxVal float64, v Violations) {
	if val < minVal || val >= maxVal {
		v.Add(field, "out_of_range")
	}
}
