package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/corey-cole/riot/models"
	"github.com/dop251/goja"
)

// ValueSpec represents a value that can be static or dynamic
type ValueSpec interface {
	IsStatic() bool
	GetStaticValue() (any, bool)
	GetDynamicExpression() (*DynamicValue, bool)
	// Resolve resolves the value against the current record and job variables
	Resolve(scope *models.Scope) (any, error)
}

// StaticValue represents a literal value (number, string, bool, etc.)
type StaticValue struct {
	Value any
}

func NewStaticValue(value any) StaticValue {
	return StaticValue{
		Value: value,
	}
}

func (s StaticValue) IsStatic() bool {
	return true
}

func (s StaticValue) GetStaticValue() (any, bool) {
	return s.Value, true
}

func (s StaticValue) GetDynamicExpression() (*DynamicValue, bool) {
	return nil, false
}

func (s StaticValue) Resolve(scope *models.Scope) (any, error) {
	// Static values always return themselves
	return s.Value, nil
}

// DynamicValue represents an expression evaluated for every record.
// The expression is compiled once and is safe for concurrent use.
type DynamicValue struct {
	Language   string // only "js" is supported
	Expression string // the expression to evaluate

	once       sync.Once
	program    *goja.Program
	compileErr error
}

// NewDynamicValue creates a JavaScript expression value
func NewDynamicValue(expression string) *DynamicValue {
	return &DynamicValue{Language: "js", Expression: expression}
}

func (d *DynamicValue) IsStatic() bool {
	return false
}

func (d *DynamicValue) GetStaticValue() (any, bool) {
	return nil, false
}

func (d *DynamicValue) GetDynamicExpression() (*DynamicValue, bool) {
	return d, true
}

// Compile checks the expression syntax without evaluating it
func (d *DynamicValue) Compile() error {
	switch d.Language {
	case "js", "javascript", "":
		_, err := d.compileJS()
		return err
	default:
		return fmt.Errorf("unsupported language: %s", d.Language)
	}
}

func (d *DynamicValue) Resolve(scope *models.Scope) (any, error) {
	switch d.Language {
	case "js", "javascript", "":
		return d.resolveJS(scope)
	default:
		return nil, fmt.Errorf("unsupported language: %s", d.Language)
	}
}

func (d *DynamicValue) compileJS() (*goja.Program, error) {
	d.once.Do(func() {
		wrappedCode := "(function() {\n return " + d.Expression + "\n})()"
		d.program, d.compileErr = goja.Compile("expression", wrappedCode, false)
		if d.compileErr != nil {
			d.compileErr = fmt.Errorf("failed to compile JS expression '%s': %w", d.Expression, d.compileErr)
		}
	})
	return d.program, d.compileErr
}

// resolveJS evaluates the expression with record, $index and $vars in scope
func (d *DynamicValue) resolveJS(scope *models.Scope) (any, error) {
	program, err := d.compileJS()
	if err != nil {
		return nil, err
	}
	return RunJS(program, scope)
}

// runtimes pools goja runtimes. A runtime is used by one goroutine at a time.
var runtimes = sync.Pool{
	New: func() any { return goja.New() },
}

// RunJS runs a compiled program with the scope bound to record, $index and $vars
func RunJS(program *goja.Program, scope *models.Scope) (any, error) {
	runtime := runtimes.Get().(*goja.Runtime)
	defer runtimes.Put(runtime)

	record := map[string]any{}
	var index int64
	vars := map[string]any{}
	if scope != nil {
		if scope.Record != nil {
			record = scope.Record.Map()
		}
		index = scope.Index
		if scope.Variables != nil {
			vars = scope.Variables
		}
	}

	if err := runtime.Set("record", record); err != nil {
		return nil, fmt.Errorf("failed to set record: %w", err)
	}
	if err := runtime.Set("$index", index); err != nil {
		return nil, fmt.Errorf("failed to set index: %w", err)
	}
	if err := runtime.Set("$vars", vars); err != nil {
		return nil, fmt.Errorf("failed to set variables: %w", err)
	}

	result, err := runtime.RunProgram(program)
	if err != nil {
		return nil, fmt.Errorf("JavaScript execution error: %w", err)
	}
	return models.NormalizeValue(result.Export()), nil
}

// VariableReference represents a reference to a job variable ($var:name)
type VariableReference struct {
	Name string
}

func (v VariableReference) IsStatic() bool {
	return false
}

func (v VariableReference) GetStaticValue() (any, bool) {
	return nil, false
}

func (v VariableReference) GetDynamicExpression() (*DynamicValue, bool) {
	return nil, false
}

func (v VariableReference) Resolve(scope *models.Scope) (any, error) {
	if scope == nil || scope.Variables == nil {
		return nil, fmt.Errorf("variable '%s' not found: no variables defined", v.Name)
	}

	value, exists := scope.Variables[v.Name]
	if !exists {
		return nil, fmt.Errorf("variable '%s' not found in job variables", v.Name)
	}

	return value, nil
}

// EnvReference represents a reference to an environment variable ($env:NAME)
type EnvReference struct {
	Name string
}

func (e EnvReference) IsStatic() bool {
	return false
}

func (e EnvReference) GetStaticValue() (any, bool) {
	return nil, false
}

func (e EnvReference) GetDynamicExpression() (*DynamicValue, bool) {
	return nil, false
}

func (e EnvReference) Resolve(scope *models.Scope) (any, error) {
	value := os.Getenv(e.Name)
	if value == "" {
		return nil, fmt.Errorf("environment variable '%s' is not set or is empty", e.Name)
	}

	return value, nil
}

// ResolveString resolves a value and renders it as a string
func ResolveString(spec ValueSpec, scope *models.Scope) (string, error) {
	value, err := spec.Resolve(scope)
	if err != nil {
		return "", err
	}
	return models.ValueString(models.NormalizeValue(value)), nil
}

// FieldSpec is a named value, used by field lists in processors and generators
type FieldSpec struct {
	Name  string
	Value ValueSpec
}
