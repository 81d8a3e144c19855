package core

import "strings"

// identifyingFields are checked in order when labelling a row in error reports.
var identifyingFields = []string{"sku", "name", "title", "email", "id", "slug", "code"}

// HeaderIndex maps CSV header names to column positions.
// Matching is exact; the first occurrence of a repeated header wins.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a HeaderIndex from a header row.
func MakeHeaderIndex(headers []string) HeaderIndex {
	idx := make(HeaderIndex, len(headers))
	for i, h := range headers {
		if _, seen := idx[h]; !seen {
			idx[h] = i
		}
	}
	return idx
}

// MapRow produces the raw value of every declared field for one CSV row.
// Mapped fields take the cell of their column, or nil when the column is
// absent or the row is short. Unmapped fields take their default, or nil.
func MapRow(fields []FieldDefinition, idx HeaderIndex, cells []string, fm FieldMap) MappedRow {
	row := make(MappedRow, len(fields))
	for _, f := range fields {
		column, mapped := fm[f.Key]
		if !mapped || column == "" {
			row[f.Key] = f.Default
			continue
		}
		pos, ok := idx[column]
		if !ok || pos >= len(cells) {
			row[f.Key] = nil
			continue
		}
		row[f.Key] = cells[pos]
	}
	return row
}

// IsEmptyRow reports whether every mapped field of row is blank.
func IsEmptyRow(row MappedRow, fm FieldMap) bool {
	for key, column := range fm {
		if column == "" {
			continue
		}
		if !isBlank(trimValue(row[key])) {
			return false
		}
	}
	return true
}

// ItemIdentifier returns a human label for a row: the first non-empty
// identifying field, else the first non-empty field, else "Unknown".
func ItemIdentifier(fields []FieldDefinition, row MappedRow) string {
	for _, key := range identifyingFields {
		if s := strings.TrimSpace(Stringify(row[key])); s != "" {
			return s
		}
	}
	for _, f := range fields {
		if s := strings.TrimSpace(Stringify(row[f.Key])); s != "" {
			return s
		}
	}
	return "Unknown"
}

// SuggestFieldMap maps each field to the first header equal to its key or
// label, ignoring case and surrounding space. Fields without a match are
// left out.
func SuggestFieldMap(fields []FieldDefinition, headers []string) FieldMap {
	fm := make(FieldMap)
	for _, f := range fields {
		for _, h := range headers {
			name := strings.TrimSpace(h)
			if strings.EqualFold(name, f.Key) || (f.Label != "" && strings.EqualFold(name, f.Label)) {
				fm[f.Key] = h
				break
			}
		}
	}
	return fm
}
