package processors

import (
	"context"
	"fmt"
	"math"

	"github.com/corey-cole/riot/builder"
	"github.com/corey-cole/riot/config"
	"github.com/corey-cole/riot/models"
)

// MapOptions configures a map processor
type MapOptions struct {
	Fields any              `mapstructure:"fields"`
	Filter config.ValueSpec `mapstructure:"filter"`
	Remove []string         `mapstructure:"remove"`
}

// MapProcessor filters records, computes fields and removes fields, in that order.
// Each computed field sees the fields set before it.
type MapProcessor struct {
	fields    []config.FieldSpec
	filter    config.ValueSpec
	remove    []string
	variables map[string]any
}

func NewMapProcessor(fields []config.FieldSpec, filter config.ValueSpec, remove []string, variables map[string]any) (*MapProcessor, error) {
	if len(fields) == 0 && filter == nil && len(remove) == 0 {
		return nil, fmt.Errorf("map processor needs at least one of 'fields', 'filter' or 'remove'")
	}
	return &MapProcessor{fields: fields, filter: filter, remove: remove, variables: variables}, nil
}

func (p *MapProcessor) Transform(ctx context.Context, record *models.Record) (*models.Record, error) {
	if p.filter != nil {
		keep, err := p.filter.Resolve(&models.Scope{Record: record, Variables: p.variables})
		if err != nil {
			return nil, models.ErrParse(0, record.String(), fmt.Errorf("filter: %w", err))
		}
		if !truthy(keep) {
			return nil, nil
		}
	}

	out := record.Clone()
	scope := &models.Scope{Record: out, Variables: p.variables}
	for _, field := range p.fields {
		value, err := field.Value.Resolve(scope)
		if err != nil {
			return nil, models.ErrParse(0, record.String(), fmt.Errorf("failed to resolve field %s: %w", field.Name, err))
		}
		out.Set(field.Name, value)
	}
	for _, name := range p.remove {
		out.Delete(name)
	}
	return out, nil
}

// truthy follows JavaScript truthiness for exported values
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int64:
		return val != 0
	case float64:
		return val != 0 && !math.IsNaN(val)
	default:
		return true
	}
}

func init() {
	builder.RegisterProcessorType("map", func(cfg map[string]any, vars map[string]any) (models.Transformer, error) {
		var opts MapOptions
		if err := builder.DecodeOptions(cfg, &opts); err != nil {
			return nil, err
		}
		fields, err := builder.ParseFieldList(opts.Fields)
		if err != nil {
			return nil, err
		}
		return NewMapProcessor(fields, opts.Filter, opts.Remove, vars)
	})
}
