package gql

import (
	"encoding/json"

	"github.com/vektah/gqlparser/v2/ast"
)

// ArgumentValues resolves the arguments of a field against the variables.
// It returns nil when the field takes no arguments.
func ArgumentValues(field *ast.Field, variables map[string]any) (map[string]any, error) {
	if len(field.Arguments) == 0 {
		return nil, nil
	}

	args := make(map[string]any, len(field.Arguments))
	for _, arg := range field.Arguments {
		v, err := arg.Value.Value(variables)
		if err != nil {
			return nil, err
		}
		args[arg.Name] = v
	}

	return args, nil
}

// StorageKey is the key a field value is stored under in a normalized
// record: the field name, followed by the JSON encoded arguments if any.
func StorageKey(field *ast.Field, variables map[string]any) (string, error) {
	args, err := ArgumentValues(field, variables)
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		return field.Name, nil
	}

	// map keys are sorted by encoding/json
	buf, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return field.Name + "(" + string(buf) + ")", nil
}

// ResponseKey is the key a field appears under in a result.
func ResponseKey(field *ast.Field) string {
	if field.Alias != "" {
		return field.Alias
	}
	return field.Name
}

// Included evaluates @skip and @include.
func Included(directives ast.DirectiveList, variables map[string]any) bool {
	if d := directives.ForName("skip"); d != nil && directiveIf(d, variables) {
		return false
	}
	if d := directives.ForName("include"); d != nil && !directiveIf(d, variables) {
		return false
	}
	return true
}

func directiveIf(d *ast.Directive, variables map[string]any) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false
	}
	v, err := arg.Value.Value(variables)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}
