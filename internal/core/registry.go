package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry holds operation definitions keyed by page and operation ID.
type Registry struct {
	mu  sync.RWMutex
	ops map[RunKey]OperationDefinition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[RunKey]OperationDefinition)}
}

// Add validates def and adds it to the registry.
func (r *Registry) Add(def OperationDefinition) error {
	if err := ValidateDefinition(def); err != nil {
		return fmt.Errorf("register %s/%s: %w", def.PageID, def.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ops[def.Key()]; exists {
		return fmt.Errorf("operation already registered: %s", def.Key())
	}
	r.ops[def.Key()] = def
	return nil
}

// Get returns an operation definition.
func (r *Registry) Get(pageID, operationID string) (OperationDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.ops[RunKey{PageID: pageID, OperationID: operationID}]
	return def, ok
}

// Lookup is Get returning ErrUnknownOperation when the operation is missing.
func (r *Registry) Lookup(pageID, operationID string) (OperationDefinition, error) {
	def, ok := r.Get(pageID, operationID)
	if !ok {
		return OperationDefinition{}, fmt.Errorf("%w: %s/%s", ErrUnknownOperation, pageID, operationID)
	}
	return def, nil
}

// All returns every operation sorted by page then ID.
func (r *Registry) All() []OperationDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]OperationDefinition, 0, len(r.ops))
	for _, def := range r.ops {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].PageID != result[j].PageID {
			return result[i].PageID < result[j].PageID
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// ByPage returns the operations registered under a page, sorted by ID.
func (r *Registry) ByPage(pageID string) []OperationDefinition {
	var result []OperationDefinition
	for _, def := range r.All() {
		if def.PageID == pageID {
			result = append(result, def)
		}
	}
	return result
}

// Clear removes every operation. Primarily useful for testing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = make(map[RunKey]OperationDefinition)
}

// ValidateDefinition checks an operation definition for configuration errors.
func ValidateDefinition(def OperationDefinition) error {
	var errs []error

	if def.PageID == "" || def.ID == "" {
		errs = append(errs, configErrorf("page and operation IDs are required"))
	}
	if def.Processor == nil {
		errs = append(errs, ErrNoProcessor)
	}
	if len(def.Fields) == 0 {
		errs = append(errs, configErrorf("at least one field is required"))
	}
	if def.BatchSize < 0 {
		errs = append(errs, configErrorf("batch size must not be negative"))
	}

	keys := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		if err := validateField(f); err != nil {
			errs = append(errs, err)
		}
		if keys[f.Key] {
			errs = append(errs, configErrorf("duplicate field key %q", f.Key))
		}
		keys[f.Key] = true
	}

	return errors.Join(errs...)
}

func validateField(f FieldDefinition) error {
	if f.Key == "" {
		return configErrorf("field key is required")
	}
	if !knownTypes[f.Type] {
		return configErrorf("field %q: unknown type %q", f.Key, f.Type)
	}
	if f.Uppercase && f.Lowercase {
		return configErrorf("field %q: uppercase and lowercase are mutually exclusive", f.Key)
	}
	if f.Pattern != "" {
		if _, err := compilePattern(f.Pattern); err != nil {
			return configErrorf("field %q: %v", f.Key, err)
		}
	}
	if f.Minimum != nil && f.Maximum != nil && *f.Minimum > *f.Maximum {
		return configErrorf("field %q: minimum exceeds maximum", f.Key)
	}
	if f.Create && f.Type != TypeTerm {
		return configErrorf("field %q: create is only supported for terms", f.Key)
	}
	if f.Type == TypeTerm && f.Taxonomy == "" {
		return configErrorf("field %q: term fields need a taxonomy", f.Key)
	}
	if f.Type.IsEntity() {
		if _, err := strategiesFor(f); err != nil {
			return err
		}
	}
	return nil
}
