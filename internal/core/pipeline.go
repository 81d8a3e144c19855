package core

import (
	"context"
	"errors"
	"fmt"
)

// Pipeline runs a raw field value through coercion, validation, custom
// hooks, and entity resolution.
//
// Process runs every stage and may create entities or fetch remote files.
// Validate stops after the custom validate hook and has no side effects,
// which is what dry runs use.
type Pipeline struct {
	resolver *Resolver
}

// NewPipeline creates a pipeline. resolver may be nil when no operation
// declares entity fields.
func NewPipeline(resolver *Resolver) *Pipeline {
	return &Pipeline{resolver: resolver}
}

// Process runs all stages and returns the final field value.
func (p *Pipeline) Process(ctx context.Context, f FieldDefinition, raw any, row MappedRow) (any, error) {
	return p.run(ctx, f, raw, row, true)
}

// Validate runs the side-effect-free stages and returns the coerced value.
func (p *Pipeline) Validate(ctx context.Context, f FieldDefinition, raw any, row MappedRow) (any, error) {
	return p.run(ctx, f, raw, row, false)
}

func (p *Pipeline) run(ctx context.Context, f FieldDefinition, raw any, row MappedRow, full bool) (any, error) {
	value := Coerce(f, raw)

	if err := ValidateValue(f, value); err != nil {
		return nil, err
	}

	if f.ValidateFunc != nil {
		if err := f.ValidateFunc(value, row); err != nil {
			return nil, hookError(f, CodeValidation, value, err)
		}
	}

	if !full {
		return value, nil
	}

	if f.ProcessFunc != nil {
		v, err := f.ProcessFunc(value, row)
		if err != nil {
			return nil, hookError(f, CodeProcessing, value, err)
		}
		value = v
	}

	if !f.Type.IsEntity() || isBlank(value) {
		return value, nil
	}

	if p.resolver == nil {
		return nil, configErrorf("field %q: entity resolution is not configured", f.Key)
	}
	id, err := p.resolver.Resolve(ctx, f, value)
	if err != nil {
		if IsNotFound(err) && !f.Required {
			return nil, nil
		}
		return nil, err
	}
	return id, nil
}

// hookError keeps hook-supplied field errors and wraps anything else as a
// row failure carrying the hook's message.
func hookError(f FieldDefinition, code ErrorCode, value any, err error) error {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe
	}
	out := fieldErrorf(f, code, value, "%s: %v", f.DisplayLabel(), err)
	out.Err = err
	return out
}

// ProcessRow runs every field of op through the pipeline. It stops at the
// first failing field.
func (p *Pipeline) ProcessRow(ctx context.Context, op OperationDefinition, row MappedRow) (ProcessedRow, error) {
	return p.processRow(ctx, op, row, true)
}

// ValidateRow is the dry counterpart of ProcessRow.
func (p *Pipeline) ValidateRow(ctx context.Context, op OperationDefinition, row MappedRow) (ProcessedRow, error) {
	return p.processRow(ctx, op, row, false)
}

func (p *Pipeline) processRow(ctx context.Context, op OperationDefinition, row MappedRow, full bool) (ProcessedRow, error) {
	out := make(ProcessedRow, len(op.Fields))
	for _, f := range op.Fields {
		v, err := p.run(ctx, f, row[f.Key], row, full)
		if err != nil {
			if IsRowError(err) {
				return nil, err
			}
			return nil, fmt.Errorf("field %s: %w", f.Key, err)
		}
		out[f.Key] = v
	}
	return out, nil
}
