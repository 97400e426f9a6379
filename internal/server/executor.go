package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// object is a resolved GraphQL object. Field values are scalars, *object,
// []*object, nil or a thunk evaluated only when the field is selected.
type object struct {
	typename string
	fields   map[string]any
}

type thunk func(ctx context.Context) (any, error)

// operation is a validated request ready to execute.
type operation struct {
	doc       *ast.QueryDocument
	op        *ast.OperationDefinition
	variables map[string]any
}

// prepare parses and validates a request against the schema.
func prepare(req *gql.Request) (*operation, gqlerror.List) {
	doc, errs := gqlparser.LoadQuery(Schema, req.Query)
	if len(errs) > 0 {
		return nil, errs
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		if req.OperationName != "" || len(doc.Operations) != 1 {
			return nil, gqlerror.List{gqlerror.Errorf("operation %q not found", req.OperationName)}
		}
		op = doc.Operations[0]
	}

	for _, def := range op.VariableDefinitions {
		if !def.Type.NonNull || def.DefaultValue != nil {
			continue
		}
		if v, ok := req.Variables[def.Variable]; !ok || v == nil {
			return nil, gqlerror.List{gqlerror.Errorf("variable $%s of type %s is required", def.Variable, def.Type.String())}
		}
	}

	return &operation{doc: doc, op: op, variables: req.Variables}, nil
}

// executor projects resolved objects onto selection sets, collecting field
// errors instead of failing the whole result.
type executor struct {
	op   *operation
	errs gqlerror.List
}

func (e *executor) fail(path ast.Path, err error) {
	e.errs = append(e.errs, gqlerror.ErrorPathf(path, "%s", err.Error()))
}

func (e *executor) project(ctx context.Context, obj *object, set ast.SelectionSet, path ast.Path) map[string]any {
	out := make(map[string]any)
	e.collect(ctx, obj, set, out, path)
	return out
}

func (e *executor) collect(ctx context.Context, obj *object, set ast.SelectionSet, out map[string]any, path ast.Path) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if !gql.Included(s.Directives, e.op.variables) {
				continue
			}
			key := gql.ResponseKey(s)
			if s.Name == gql.TypenameField {
				out[key] = obj.typename
				continue
			}

			value := obj.fields[s.Name]
			if th, ok := value.(thunk); ok {
				v, err := th(ctx)
				if err != nil {
					e.fail(childPath(path, ast.PathName(key)), err)
					out[key] = nil
					continue
				}
				value = v
			}
			out[key] = e.value(ctx, value, s.SelectionSet, childPath(path, ast.PathName(key)))

		case *ast.InlineFragment:
			if !gql.Included(s.Directives, e.op.variables) {
				continue
			}
			if s.TypeCondition == "" || s.TypeCondition == obj.typename {
				e.collect(ctx, obj, s.SelectionSet, out, path)
			}

		case *ast.FragmentSpread:
			if !gql.Included(s.Directives, e.op.variables) {
				continue
			}
			def := s.Definition
			if def == nil {
				def = e.op.doc.Fragments.ForName(s.Name)
			}
			if def != nil && def.TypeCondition == obj.typename {
				e.collect(ctx, obj, def.SelectionSet, out, path)
			}
		}
	}
}

func (e *executor) value(ctx context.Context, v any, set ast.SelectionSet, path ast.Path) any {
	switch x := v.(type) {
	case *object:
		if x == nil {
			return nil
		}
		return e.project(ctx, x, set, path)
	case []*object:
		list := make([]any, len(x))
		for i, item := range x {
			list[i] = e.value(ctx, item, set, childPath(path, ast.PathIndex(i)))
		}
		return list
	default:
		return v
	}
}

func childPath(path ast.Path, el ast.PathElement) ast.Path {
	next := make(ast.Path, len(path), len(path)+1)
	copy(next, path)
	return append(next, el)
}

// resolveRoot runs every root field of a query or mutation through resolve.
func (e *executor) resolveRoot(ctx context.Context, resolve func(ctx context.Context, field *ast.Field, args map[string]any) (any, error)) map[string]any {
	data := make(map[string]any)

	for _, sel := range e.op.op.SelectionSet {
		field, ok := sel.(*ast.Field)
		if !ok || !gql.Included(field.Directives, e.op.variables) {
			continue
		}
		key := gql.ResponseKey(field)
		path := ast.Path{ast.PathName(key)}

		if field.Name == gql.TypenameField {
			data[key] = rootTypename(e.op.op.Operation)
			continue
		}

		args, err := gql.ArgumentValues(field, e.op.variables)
		if err != nil {
			e.fail(path, err)
			data[key] = nil
			continue
		}

		v, err := resolve(ctx, field, args)
		if err != nil {
			e.fail(path, err)
			data[key] = nil
			continue
		}
		data[key] = e.value(ctx, v, field.SelectionSet, path)
	}

	return data
}

func rootTypename(op ast.Operation) string {
	switch op {
	case ast.Mutation:
		return "Mutation"
	case ast.Subscription:
		return "Subscription"
	}
	return "Query"
}

// response turns the executor's outcome into a wire response.
func (e *executor) response(data map[string]any) *gql.Response {
	resp := &gql.Response{Data: data}
	resp.Errors = toErrors(e.errs)
	return resp
}

func toErrors(list gqlerror.List) gql.Errors {
	if len(list) == 0 {
		return nil
	}

	// gqlerror and gql errors share the wire shape
	buf, err := json.Marshal(list)
	if err != nil {
		return gql.Errors{{Message: list.Error()}}
	}
	var errs gql.Errors
	if err := json.Unmarshal(buf, &errs); err != nil {
		return gql.Errors{{Message: fmt.Sprint(list)}}
	}
	return errs
}
