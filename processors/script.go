package processors

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/corey-cole/riot/builder"
	"github.com/corey-cole/riot/config"
	"github.com/corey-cole/riot/models"
	"github.com/dop251/goja"
)

// ScriptProcessor runs a JavaScript function body per record.
// The body sees record and $vars and returns the new record, or null to drop it.
type ScriptProcessor struct {
	program   *goja.Program
	variables map[string]any
}

func NewScriptProcessor(code string, variables map[string]any) (*ScriptProcessor, error) {
	if code == "" {
		return nil, models.ErrMissingConfig("code")
	}
	// Wrap the code in an anonymous function to allow return usage
	wrappedCode := "(function() {\n" + code + "\n})()"
	program, err := goja.Compile("script", wrappedCode, false)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}
	return &ScriptProcessor{program: program, variables: variables}, nil
}

func (p *ScriptProcessor) Transform(ctx context.Context, record *models.Record) (*models.Record, error) {
	result, err := config.RunJS(p.program, &models.Scope{Record: record, Variables: p.variables})
	if err != nil {
		return nil, models.ErrParse(0, record.String(), err)
	}

	switch out := result.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return orderLike(record, out), nil
	default:
		return nil, models.ErrParse(0, record.String(), errors.New("script must return an object or null"))
	}
}

// orderLike builds a record from fields, keeping the field order of the input
// record and appending new fields sorted by name
func orderLike(in *models.Record, fields map[string]any) *models.Record {
	out := models.NewRecord()
	for _, name := range in.Keys() {
		if value, ok := fields[name]; ok {
			out.Set(name, value)
		}
	}
	added := make([]string, 0, len(fields))
	for name := range fields {
		if _, ok := in.Get(name); !ok {
			added = append(added, name)
		}
	}
	sort.Strings(added)
	for _, name := range added {
		out.Set(name, fields[name])
	}
	return out
}

func init() {
	builder.RegisterProcessorType("script", func(cfg map[string]any, vars map[string]any) (models.Transformer, error) {
		var opts struct {
			Code string `mapstructure:"code"`
		}
		if err := builder.DecodeOptions(cfg, &opts); err != nil {
			return nil, err
		}
		return NewScriptProcessor(opts.Code, vars)
	})
}
