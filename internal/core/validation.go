package core

// validation.go checks coerced field values against their declared rules.
//
// Checks run in a fixed order and stop at the first failure:
// required, type format, minimum/maximum, length, options, pattern.
// An empty optional value passes without further checks. Entity fields
// only honour the required rule; their existence is checked by the resolver.

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()

	patternCache sync.Map // string -> *regexp.Regexp
)

// ValidateValue checks a coerced value against the field's rules.
// It returns nil or a *FieldError.
func ValidateValue(f FieldDefinition, value any) error {
	if isBlank(value) {
		if f.Required {
			return fieldErrorf(f, CodeRequired, value, "%s is required.", f.DisplayLabel())
		}
		return nil
	}

	if f.Type.IsEntity() {
		return nil
	}

	for _, elem := range elements(value) {
		if err := validateElement(f, elem); err != nil {
			return err
		}
	}
	return nil
}

func validateElement(f FieldDefinition, v any) error {
	label := f.DisplayLabel()
	s := Stringify(v)

	switch f.Type {
	case TypeNumber:
		if _, ok := numericValue(v); !ok {
			return fieldErrorf(f, CodeInvalidNumber, v, "%s must be a number (got %q).", label, s)
		}
	case TypeInteger:
		if !isInteger(v) {
			return fieldErrorf(f, CodeInvalidInteger, v, "%s must be a whole number (got %q).", label, s)
		}
	case TypeEmail:
		if validate.Var(s, "email") != nil {
			return fieldErrorf(f, CodeInvalidEmail, v, "%s must be a valid email address (got %q).", label, s)
		}
	case TypeURL:
		if !IsURL(s) {
			return fieldErrorf(f, CodeInvalidURL, v, "%s must be a valid URL (got %q).", label, s)
		}
	case TypeCurrency:
		if !IsCurrencyCode(s) {
			return fieldErrorf(f, CodeInvalidCurrency, v, "%s must be a valid ISO 4217 currency code (got %q).", label, s)
		}
	}

	if f.Minimum != nil || f.Maximum != nil {
		if n, ok := numericValue(v); ok {
			if f.Minimum != nil && n < *f.Minimum {
				return fieldErrorf(f, CodeBelowMinimum, v, "%s must be at least %s.", label, formatFloat(*f.Minimum))
			}
			if f.Maximum != nil && n > *f.Maximum {
				return fieldErrorf(f, CodeAboveMaximum, v, "%s must be at most %s.", label, formatFloat(*f.Maximum))
			}
		}
	}

	if str, ok := v.(string); ok {
		n := utf8.RuneCountInString(str)
		if f.MinLength != nil && n < *f.MinLength {
			return fieldErrorf(f, CodeTooShort, v, "%s must be at least %d characters.", label, *f.MinLength)
		}
		if f.MaxLength != nil && n > *f.MaxLength {
			return fieldErrorf(f, CodeTooLong, v, "%s must be at most %d characters.", label, *f.MaxLength)
		}
	}

	if len(f.Options) > 0 && !containsString(f.Options, s) {
		return fieldErrorf(f, CodeInvalidOption, v, "%s must be one of: %s (got %q).", label, strings.Join(f.Options, ", "), s)
	}

	if f.Pattern != "" {
		re, err := compilePattern(f.Pattern)
		if err != nil || !re.MatchString(s) {
			return fieldErrorf(f, CodeInvalidPattern, v, "%s has an invalid format.", label)
		}
	}

	return nil
}

// IsURL reports whether s is an absolute URL with a host. Opaque forms such
// as "mailto:x" or "javascript:..." and values containing whitespace fail.
func IsURL(s string) bool {
	if s == "" || strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return false
	}
	if validate.Var(s, "url") != nil {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Host != ""
}

// IsEmail reports whether s looks like an email address.
func IsEmail(s string) bool {
	return s != "" && validate.Var(s, "email") == nil
}

// IsCurrencyCode reports whether s is an ISO 4217 alphabetic code.
func IsCurrencyCode(s string) bool {
	return validate.Var(strings.ToUpper(s), "iso4217") == nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	patternCache.Store(pattern, re)
	return re, nil
}

func elements(v any) []any {
	switch x := v.(type) {
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []any:
		return x
	}
	return []any{v}
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		return ParseNumber(n)
	}
	return 0, false
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int64, int:
		return true
	case float64:
		return n == float64(int64(n))
	case string:
		_, ok := parseInteger(n)
		return ok
	}
	return false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
