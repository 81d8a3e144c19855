package core

import (
	"reflect"
	"testing"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name  string
		field FieldDefinition
		raw   any
		want  any
	}{
		{"trims strings", FieldDefinition{Key: "name", Type: TypeString}, "  hi  ", "hi"},
		{"nil stays nil", FieldDefinition{Key: "name", Type: TypeString}, nil, nil},
		{"blank stays blank", FieldDefinition{Key: "name", Type: TypeString}, "   ", ""},
		{"default on blank", FieldDefinition{Key: "currency", Type: TypeCurrency, Default: "usd"}, "", "USD"},
		{"default on nil", FieldDefinition{Key: "stock", Type: TypeInteger, Default: "0"}, nil, int64(0)},
		{"default is not trimmed", FieldDefinition{Key: "note", Type: TypeString, Default: "  x  "}, "", "  x  "},
		{"default ignored when set", FieldDefinition{Key: "currency", Type: TypeCurrency, Default: "USD"}, "eur", "EUR"},
		{"uppercase", FieldDefinition{Key: "sku", Type: TypeString, Uppercase: true}, "ab-1", "AB-1"},
		{"lowercase", FieldDefinition{Key: "status", Type: TypeString, Lowercase: true}, "Draft", "draft"},
		{"split drops empty pieces", FieldDefinition{Key: "tags", Type: TypeString, Separator: ","}, "a, b,,c ", []string{"a", "b", "c"}},
		{"split candidate set", FieldDefinition{Key: "tags", Type: TypeString, Separator: ",;|"}, "a;b|c", []string{"a", "b|c"}},
		{"split then uppercase order", FieldDefinition{Key: "codes", Type: TypeString, Separator: ",", Uppercase: true}, "x,y", []string{"X", "Y"}},
		{"number with symbol and commas", FieldDefinition{Key: "price", Type: TypeNumber}, "$1,234.50", 1234.5},
		{"accounting negative", FieldDefinition{Key: "price", Type: TypeNumber}, "(12)", -12.0},
		{"unparseable number left as is", FieldDefinition{Key: "price", Type: TypeNumber}, "abc", "abc"},
		{"integer with commas", FieldDefinition{Key: "qty", Type: TypeInteger}, "1,000", int64(1000)},
		{"fractional integer left as is", FieldDefinition{Key: "qty", Type: TypeInteger}, "1.5", "1.5"},
		{"boolean yes", FieldDefinition{Key: "active", Type: TypeBoolean}, "Yes", true},
		{"boolean on", FieldDefinition{Key: "active", Type: TypeBoolean}, "on", true},
		{"boolean other", FieldDefinition{Key: "active", Type: TypeBoolean}, "nope", false},
		{"entity value untouched", FieldDefinition{Key: "brand", Type: TypePost}, " Acme ", "Acme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Coerce(tt.field, tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Coerce(%v) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCoerce_Idempotent(t *testing.T) {
	tests := []struct {
		field FieldDefinition
		raw   any
	}{
		{FieldDefinition{Key: "price", Type: TypeNumber}, "$1,234.50"},
		{FieldDefinition{Key: "price", Type: TypeNumber}, "abc"},
		{FieldDefinition{Key: "qty", Type: TypeInteger}, " 1,000 "},
		{FieldDefinition{Key: "qty", Type: TypeInteger}, "1.5"},
		{FieldDefinition{Key: "active", Type: TypeBoolean}, "Yes"},
		{FieldDefinition{Key: "active", Type: TypeBoolean}, "nope"},
		{FieldDefinition{Key: "currency", Type: TypeCurrency}, " eur "},
		{FieldDefinition{Key: "currency", Type: TypeCurrency, Default: "usd"}, ""},
		{FieldDefinition{Key: "tags", Type: TypeString, Separator: ","}, "a, b,,c "},
		{FieldDefinition{Key: "tags", Type: TypeString, Separator: "|"}, "||"},
		{FieldDefinition{Key: "sku", Type: TypeString, Uppercase: true}, "ab-1"},
		{FieldDefinition{Key: "status", Type: TypeString, Lowercase: true}, "Draft"},
	}

	for _, tt := range tests {
		once := Coerce(tt.field, tt.raw)
		twice := Coerce(tt.field, once)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("%s: Coerce(%q) = %#v, coerced again = %#v", tt.field.Key, tt.raw, once, twice)
		}
	}
}

func TestCoerce_DefaultSatisfiesRequired(t *testing.T) {
	tests := []struct {
		field FieldDefinition
		raw   any
	}{
		{FieldDefinition{Key: "status", Type: TypeString, Required: true, Default: "draft"}, ""},
		{FieldDefinition{Key: "status", Type: TypeString, Required: true, Default: "draft"}, "   "},
		{FieldDefinition{Key: "stock", Type: TypeInteger, Required: true, Default: "0"}, nil},
	}
	for _, tt := range tests {
		if err := ValidateValue(tt.field, Coerce(tt.field, tt.raw)); err != nil {
			t.Errorf("%s with default: %v", tt.field.Key, err)
		}
	}

	f := FieldDefinition{Key: "status", Type: TypeString, Required: true}
	if err := ValidateValue(f, Coerce(f, "")); err == nil {
		t.Error("required field without default should fail on empty cell")
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		sep  string
		want []string
	}{
		{"a,b", ",", []string{"a", "b"}},
		{"a | b", "|", []string{"a", "b"}},
		{"a::b", "::", []string{"a", "b"}},
		{"solo", ",;", []string{"solo"}},
		{" , ", ",", []string{}},
		{"||", "|", []string{}},
	}
	for _, tt := range tests {
		got := SplitList(tt.in, tt.sep)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitList(%q, %q) = %#v, want %#v", tt.in, tt.sep, got, tt.want)
		}
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"9.99", 9.99, true},
		{"1.2.3", 0, false},
		{"€ 1 200", 1200, true},
		{"1,200", 1200, true},
		{"-3", -3, true},
		{".5", 0.5, true},
		{"1e3", 1000, true},
		{"(4.50)", -4.5, true},
		{"", 0, false},
		{"12abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseNumber(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
