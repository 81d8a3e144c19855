package core

import (
	"errors"
	"testing"
)

func TestValidateValue(t *testing.T) {
	price := FieldDefinition{Key: "price", Label: "Price", Type: TypeNumber, Required: true, Minimum: ptrFloat(0.01), Maximum: ptrFloat(1000)}

	tests := []struct {
		name     string
		field    FieldDefinition
		raw      any
		wantCode ErrorCode
		wantMsg  string
	}{
		{"required blank", price, "", CodeRequired, "Price is required."},
		{"optional blank", FieldDefinition{Key: "note", Type: TypeString}, "", "", ""},
		{"valid number", price, "9.99", "", ""},
		{"not a number", price, "abc", CodeInvalidNumber, `Price must be a number (got "abc").`},
		{"below minimum", price, "0", CodeBelowMinimum, "Price must be at least 0.01."},
		{"above maximum", price, "1001", CodeAboveMaximum, "Price must be at most 1000."},
		{"fractional integer", FieldDefinition{Key: "qty", Type: TypeInteger}, "1.5", CodeInvalidInteger, ""},
		{"bad email", FieldDefinition{Key: "email", Type: TypeEmail}, "nope", CodeInvalidEmail, ""},
		{"good email", FieldDefinition{Key: "email", Type: TypeEmail}, "a@b.co", "", ""},
		{"bad url", FieldDefinition{Key: "url", Type: TypeURL}, "not a url", CodeInvalidURL, ""},
		{"good url", FieldDefinition{Key: "url", Type: TypeURL}, "https://example.com/a?b=1", "", ""},
		{"bad currency", FieldDefinition{Key: "cur", Type: TypeCurrency}, "ABC", CodeInvalidCurrency, ""},
		{"lowercase currency", FieldDefinition{Key: "cur", Type: TypeCurrency}, "eur", "", ""},
		{"too short", FieldDefinition{Key: "code", Type: TypeString, MinLength: ptrInt(3)}, "ab", CodeTooShort, "code must be at least 3 characters."},
		{"too long counts runes", FieldDefinition{Key: "code", Type: TypeString, MaxLength: ptrInt(3)}, "äöüß", CodeTooLong, ""},
		{"runes within limit", FieldDefinition{Key: "code", Type: TypeString, MaxLength: ptrInt(3)}, "äöü", "", ""},
		{"not an option", FieldDefinition{Key: "status", Type: TypeString, Options: []string{"a", "b"}}, "c", CodeInvalidOption, `status must be one of: a, b (got "c").`},
		{"pattern mismatch", FieldDefinition{Key: "sku", Label: "SKU", Type: TypeString, Pattern: `^[A-Z]+$`}, "a1", CodeInvalidPattern, "SKU has an invalid format."},
		{"list element too long", FieldDefinition{Key: "tags", Type: TypeString, Separator: ",", MaxLength: ptrInt(3)}, "ab,abcd", CodeTooLong, ""},
		{"entity values skip format checks", FieldDefinition{Key: "brand", Type: TypePost, MaxLength: ptrInt(1)}, "Acme", "", ""},
		{"required entity blank", FieldDefinition{Key: "brand", Label: "Brand", Type: TypePost, Required: true}, " ", CodeRequired, "Brand is required."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateValue(tt.field, Coerce(tt.field, tt.raw))
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("error = %v, want *FieldError", err)
			}
			if fe.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", fe.Code, tt.wantCode)
			}
			if fe.Field != tt.field.Key {
				t.Errorf("field = %q, want %q", fe.Field, tt.field.Key)
			}
			if tt.wantMsg != "" && fe.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", fe.Message, tt.wantMsg)
			}
		})
	}
}

func TestIsURL(t *testing.T) {
	for s, want := range map[string]bool{
		"https://example.com":           true,
		"http://localhost:8080/x":       true,
		"ftp://files.example.com/a.csv": true,
		"example.com":                   false,
		"":                              false,
		"javascript:alert(1)":           false,
		"foo:bar":                       false,
		"mailto:jane@example.com":       false,
		"https://x.io/a b":              false,
		"https://":                      false,
	} {
		if got := IsURL(s); got != want {
			t.Errorf("IsURL(%q) = %v, want %v", s, got, want)
		}
	}
}
