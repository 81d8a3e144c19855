package core

// coerce.go normalizes raw CSV cell values before validation.
//
// Steps run in a fixed order: trim, default substitution, case transform,
// separator split, type cast. Each step sees the previous step's output, so
// a default value is itself transformed and cast, but never trimmed. Casting never fails: a
// value that cannot be parsed is left as-is for the validator to reject.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
	integerRegex = regexp.MustCompile(`^[+-]?\d+$`)
)

var truthy = map[string]bool{"1": true, "true": true, "yes": true, "on": true, "y": true}

// Coerce runs the coercion steps for one field value.
func Coerce(f FieldDefinition, value any) any {
	value = trimValue(value)
	value = applyDefault(f, value)
	value = transformCase(f, value)
	value = splitValue(f, value)
	return castValue(f, value)
}

func trimValue(v any) any {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return v
}

func applyDefault(f FieldDefinition, v any) any {
	if f.Default != nil && isBlank(v) {
		return f.Default
	}
	return v
}

// transformCase applies uppercase then lowercase. Definitions setting both
// are rejected at registration.
func transformCase(f FieldDefinition, v any) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return v
	}
	if f.Uppercase {
		s = strings.ToUpper(s)
	}
	if f.Lowercase {
		s = strings.ToLower(s)
	}
	return s
}

func splitValue(f FieldDefinition, v any) any {
	s, ok := v.(string)
	if !ok || s == "" || f.Separator == "" {
		return v
	}
	return SplitList(s, f.Separator)
}

// SplitList splits s on separator. A multi-character separator is a set of
// candidate delimiters: the first one present in s is used. When none is
// present the literal separator string is used. Pieces are trimmed and
// empty pieces dropped.
func SplitList(s, separator string) []string {
	delim := separator
	if len([]rune(separator)) > 1 {
		for _, r := range separator {
			if strings.ContainsRune(s, r) {
				delim = string(r)
				break
			}
		}
	}

	parts := strings.Split(s, delim)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func castValue(f FieldDefinition, v any) any {
	if isBlank(v) {
		return v
	}
	if _, isList := v.([]string); isList {
		return v
	}

	switch f.Type {
	case TypeNumber:
		return castNumber(v)
	case TypeInteger:
		return castInteger(v)
	case TypeBoolean:
		return castBool(v)
	case TypeCurrency:
		return strings.ToUpper(strings.TrimSpace(Stringify(v)))
	case TypeString, TypeURL, TypeEmail:
		return Stringify(v)
	default:
		return v
	}
}

func castNumber(v any) any {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case string:
		if f, ok := ParseNumber(n); ok {
			return f
		}
	}
	return v
}

// ParseNumber parses a user-formatted number such as "$1,234.50" or "(12)".
// Currency symbols, thousands separators and spaces are ignored.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) {
			return -1
		}
		return r
	}, s)

	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		f = -f
	}
	return f, true
}

func castInteger(v any) any {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
	case string:
		if i, ok := parseInteger(n); ok {
			return i
		}
	}
	return v
}

func parseInteger(s string) (int64, bool) {
	s = strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if !integerRegex.MatchString(s) {
		return 0, false
	}
	i, err := strconv.ParseInt(s, 10, 64)
	return i, err == nil
}

func castBool(v any) any {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return truthy[strings.ToLower(strings.TrimSpace(b))]
	default:
		return truthy[strings.ToLower(Stringify(v))]
	}
}

// Stringify renders a scalar value the way it would appear in a CSV cell.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case []string:
		return strings.Join(x, ", ")
	default:
		return fmt.Sprint(x)
	}
}

// isBlank reports whether v is nil, an empty string, or an empty list.
func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []string:
		return len(x) == 0
	case []any:
		return len(x) == 0
	case []int64:
		return len(x) == 0
	}
	return false
}
