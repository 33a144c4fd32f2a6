package sources

import (
	"context"
	"fmt"

	"github.com/corey-cole/riot/builder"
	"github.com/corey-cole/riot/config"
	"github.com/corey-cole/riot/models"
)

const (
	DefaultGeneratorCount = 1000
	DefaultGeneratorStart = 1
)

// GeneratorOptions configures a generator source
type GeneratorOptions struct {
	Count  *int64 `mapstructure:"count"`
	Start  *int64 `mapstructure:"start"`
	Fields any    `mapstructure:"fields"`
}

// Generator produces synthetic records. Each field value is resolved with $index
// bound to the record position and record holding the fields computed so far.
type Generator struct {
	count     int64
	start     int64
	fields    []config.FieldSpec
	variables map[string]any

	produced int64
}

func NewGenerator(count, start int64, fields []config.FieldSpec, variables map[string]any) (*Generator, error) {
	if count < 0 {
		return nil, fmt.Errorf("count must be >= 0, got %d", count)
	}
	if len(fields) == 0 {
		fields = []config.FieldSpec{{Name: "index", Value: config.NewDynamicValue("$index")}}
	}
	return &Generator{count: count, start: start, fields: fields, variables: variables}, nil
}

func (g *Generator) Open(ctx context.Context) error {
	g.produced = 0
	return nil
}

func (g *Generator) Next(ctx context.Context) (*models.Record, error) {
	if g.produced >= g.count {
		return nil, models.ErrEndOfStream
	}
	index := g.start + g.produced
	g.produced++

	record := models.NewRecord()
	scope := &models.Scope{Record: record, Index: index, Variables: g.variables}
	for _, field := range g.fields {
		value, err := field.Value.Resolve(scope)
		if err != nil {
			return nil, models.ErrParse(g.produced, "", fmt.Errorf("field %s: %w", field.Name, err))
		}
		record.Set(field.Name, value)
	}
	return record, nil
}

func (g *Generator) Close() error { return nil }

func (g *Generator) Capabilities() models.SourceCapabilities {
	return models.SourceCapabilities{EstimatedSize: g.count}
}

func init() {
	builder.RegisterSourceType("generator", func(cfg map[string]any, vars map[string]any) (models.Source, error) {
		var opts GeneratorOptions
		if err := builder.DecodeOptions(cfg, &opts); err != nil {
			return nil, err
		}
		count, start := int64(DefaultGeneratorCount), int64(DefaultGeneratorStart)
		if opts.Count != nil {
			count = *opts.Count
		}
		if opts.Start != nil {
			start = *opts.Start
		}
		fields, err := builder.ParseFieldList(opts.Fields)
		if err != nil {
			return nil, err
		}
		return NewGenerator(count, start, fields, vars)
	})
}
