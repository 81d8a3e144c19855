// Package operations defines the import operations this server offers and
// the repositories their rows are written to.
package operations

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/csvimport/internal/core"
)

// Deps are the repositories operation processors write to.
type Deps struct {
	Products ProductRepository
	Contacts ContactRepository
}

// RegisterAll adds every operation to reg.
func RegisterAll(reg *core.Registry, deps Deps) error {
	if deps.Products == nil || deps.Contacts == nil {
		return errors.New("operations: products and contacts repositories are required")
	}
	for _, op := range []core.OperationDefinition{
		ProductsOperation(deps.Products),
		ContactsOperation(deps.Contacts),
	} {
		if err := reg.Add(op); err != nil {
			return fmt.Errorf("register %s: %w", op.Key(), err)
		}
	}
	return nil
}

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int) *int { return &i }

// Row value accessors. Processed values are already cast, so anything of
// an unexpected type reads as the zero value.

// present reports whether key holds a non-blank value. Dry runs see entity
// references before resolution, so this accepts both names and IDs.
func present(row core.ProcessedRow, key string) bool {
	return row[key] != nil && core.Stringify(row[key]) != ""
}

func str(row core.ProcessedRow, key string) string {
	s, _ := row[key].(string)
	return s
}

func num(row core.ProcessedRow, key string) float64 {
	f, _ := row[key].(float64)
	return f
}

func integer(row core.ProcessedRow, key string) int64 {
	i, _ := row[key].(int64)
	return i
}

func boolean(row core.ProcessedRow, key string) bool {
	b, _ := row[key].(bool)
	return b
}

func strList(row core.ProcessedRow, key string) []string {
	switch v := row[key].(type) {
	case []string:
		return v
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return []string{}
}

func entityID(row core.ProcessedRow, key string) *int64 {
	if id, ok := row[key].(int64); ok {
		return &id
	}
	return nil
}

func entityIDs(row core.ProcessedRow, key string) []int64 {
	switch v := row[key].(type) {
	case []int64:
		return v
	case int64:
		return []int64{v}
	}
	return []int64{}
}
