package core

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// FindDuplicates reports repeated values of unique fields in one linear pass.
// Row numbers are 1-indexed from the first data row. Blank values are never
// compared. Each repeat yields one RowError citing the first row that held
// the value.
func FindDuplicates(fields []FieldDefinition, rows []MappedRow) []RowError {
	var unique []FieldDefinition
	for _, f := range fields {
		if f.Unique {
			unique = append(unique, f)
		}
	}
	if len(unique) == 0 {
		return nil
	}

	seen := make(map[string]map[xxh3.Uint128]int, len(unique))
	for _, f := range unique {
		seen[f.Key] = make(map[xxh3.Uint128]int)
	}

	var errs []RowError
	for i, row := range rows {
		rowNum := i + 1
		for _, f := range unique {
			v := strings.TrimSpace(Stringify(row[f.Key]))
			if v == "" {
				continue
			}
			h := xxh3.HashString128(v)
			if first, dup := seen[f.Key][h]; dup {
				errs = append(errs, RowError{
					Row:     rowNum,
					Item:    ItemIdentifier(fields, row),
					Message: fmt.Sprintf("Duplicate value %q for %s (first seen in row %d).", v, f.DisplayLabel(), first),
				})
				continue
			}
			seen[f.Key][h] = rowNum
		}
	}
	return errs
}
