package core

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// typeExamples are canned sample values per field type.
var typeExamples = map[FieldType]string{
	TypeNumber:     "9.99",
	TypeInteger:    "10",
	TypeBoolean:    "yes",
	TypeURL:        "https://example.com",
	TypeEmail:      "user@example.com",
	TypeCurrency:   "USD",
	TypeUser:       "user@example.com",
	TypeAttachment: "https://example.com/image.jpg",
}

// keyHints pick a plausible example from a substring of the field key.
// Checked in order.
var keyHints = []struct {
	substr  string
	example string
}{
	{"email", "user@example.com"},
	{"url", "https://example.com"},
	{"link", "https://example.com"},
	{"image", "https://example.com/image.jpg"},
	{"price", "19.99"},
	{"cost", "19.99"},
	{"amount", "100.00"},
	{"qty", "10"},
	{"quantity", "10"},
	{"stock", "10"},
	{"sku", "SKU-001"},
	{"code", "CODE-001"},
	{"phone", "555-0100"},
	{"date", "2024-01-01"},
	{"slug", "example-item"},
	{"title", "Example Title"},
	{"name", "Example Name"},
	{"description", "Example description"},
}

// GenerateSample renders a CSV with a header row of field keys and one
// synthesized example row.
func GenerateSample(fields []FieldDefinition) (string, error) {
	header := make([]string, len(fields))
	example := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Key
		example[i] = SampleValue(f)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll([][]string{header, example}); err != nil {
		return "", fmt.Errorf("write sample csv: %w", err)
	}
	return buf.String(), nil
}

// SampleValue picks an example value: the default, else the first option,
// else a per-type example, else a key-name hint, else "Example".
func SampleValue(f FieldDefinition) string {
	if f.Default != nil {
		if s := Stringify(f.Default); s != "" {
			return s
		}
	}
	if len(f.Options) > 0 {
		return f.Options[0]
	}
	if ex, ok := typeExamples[f.Type]; ok {
		return ex
	}
	key := strings.ToLower(f.Key)
	for _, h := range keyHints {
		if strings.Contains(key, h.substr) {
			return h.example
		}
	}
	return "Example"
}
