package builder

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/corey-cole/riot/config"
	"github.com/corey-cole/riot/models"
	"github.com/go-viper/mapstructure/v2"
)

// CreateSource creates a source based on type and configuration
func CreateSource(comp config.ComponentConfig, vars map[string]any) (models.Source, error) {
	factory, err := GetSourceFactory(comp.Type)
	if err != nil {
		return nil, err
	}
	cfg, err := Prepare(comp.Config, vars)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", comp.Type, err)
	}
	return factory(cfg, vars)
}

// CreateProcessor creates a record transformer based on type and configuration
func CreateProcessor(comp config.ComponentConfig, vars map[string]any) (models.Transformer, error) {
	factory, err := GetProcessorFactory(comp.Type)
	if err != nil {
		return nil, err
	}
	cfg, err := Prepare(comp.Config, vars)
	if err != nil {
		return nil, fmt.Errorf("processor %s: %w", comp.Type, err)
	}
	return factory(cfg, vars)
}

// CreateSinkFactory returns a factory of sinks for the configuration.
// The configuration is checked once up front by building a throwaway sink;
// sinks only acquire resources in Open.
func CreateSinkFactory(comp config.ComponentConfig, vars map[string]any) (models.SinkFactory, error) {
	factory, err := GetSinkFactory(comp.Type)
	if err != nil {
		return nil, err
	}
	cfg, err := Prepare(comp.Config, vars)
	if err != nil {
		return nil, fmt.Errorf("sink %s: %w", comp.Type, err)
	}
	if _, err := factory(cfg, vars); err != nil {
		return nil, fmt.Errorf("sink %s: %w", comp.Type, err)
	}
	return func() (models.Sink, error) {
		return factory(cfg, vars)
	}, nil
}

// ParseConfigValue converts a configuration value into a ValueSpec.
// "$js: expr" is an expression, "$var:name" a job variable, "$env:NAME" an environment variable.
func ParseConfigValue(v any) config.ValueSpec {
	if spec, ok := v.(config.ValueSpec); ok {
		return spec
	}
	if str, ok := v.(string); ok {
		switch {
		case strings.HasPrefix(str, "$js:"):
			expr := strings.TrimSpace(strings.TrimPrefix(str, "$js:"))
			return config.NewDynamicValue(expr)
		case strings.HasPrefix(str, "$var:"):
			return config.VariableReference{Name: strings.TrimSpace(strings.TrimPrefix(str, "$var:"))}
		case strings.HasPrefix(str, "$env:"):
			return config.EnvReference{Name: strings.TrimSpace(strings.TrimPrefix(str, "$env:"))}
		}
	}

	// Otherwise it's a static value
	return config.StaticValue{Value: v}
}

// Prepare walks a configuration map: variable and environment references are
// replaced by their values, expressions become compiled *config.DynamicValue.
func Prepare(cfg map[string]any, vars map[string]any) (map[string]any, error) {
	prepared, err := prepareValue("", cfg, vars)
	if err != nil {
		return nil, err
	}
	if prepared == nil {
		return map[string]any{}, nil
	}
	return prepared.(map[string]any), nil
}

func prepareValue(key string, v any, vars map[string]any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			prepared, err := prepareValue(joinKey(key, k), item, vars)
			if err != nil {
				return nil, err
			}
			out[k] = prepared
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			prepared, err := prepareValue(fmt.Sprintf("%s[%d]", key, i), item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = prepared
		}
		return out, nil
	case string:
		spec := ParseConfigValue(val)
		switch s := spec.(type) {
		case *config.DynamicValue:
			if err := s.Compile(); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			return s, nil
		case config.VariableReference, config.EnvReference:
			resolved, err := s.Resolve(&models.Scope{Variables: vars})
			if err != nil {
				return nil, models.ErrInterpolate(key, err)
			}
			return resolved, nil
		}
		return val, nil
	default:
		return v, nil
	}
}

func joinKey(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

var valueSpecType = reflect.TypeOf((*config.ValueSpec)(nil)).Elem()

// DecodeOptions decodes a prepared configuration into a typed options struct
// using `mapstructure` tags. Fields of type config.ValueSpec accept both
// literals and expressions. Unknown keys are rejected.
func DecodeOptions(cfg map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			valueSpecHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func valueSpecHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != valueSpecType {
		return data, nil
	}
	if data == nil {
		return nil, nil
	}
	return ParseConfigValue(data), nil
}

// ParseFieldList parses a list of {name, value} maps into field specs
func ParseFieldList(fields any) ([]config.FieldSpec, error) {
	if fields == nil {
		return nil, nil
	}
	fieldList, ok := fields.([]any)
	if !ok {
		return nil, fmt.Errorf("fields must be a list of maps, got %T", fields)
	}

	specs := make([]config.FieldSpec, 0, len(fieldList))
	for _, field := range fieldList {
		fieldMap, ok := field.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("each field must be a map, got %T", field)
		}

		name, ok := fieldMap["name"].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("field map must contain a 'name' key with a string value, got %T", fieldMap["name"])
		}

		value, ok := fieldMap["value"]
		if !ok {
			return nil, fmt.Errorf("field map must contain a 'value' key, got %v", fieldMap)
		}

		specs = append(specs, config.FieldSpec{Name: name, Value: ParseConfigValue(value)})
	}
	if len(specs) == 0 {
		return nil, errors.New("fields cannot be empty")
	}
	return specs, nil
}
