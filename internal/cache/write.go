package cache

import (
	"context"
	"fmt"

	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/vektah/gqlparser/v2/ast"
)

// writer normalizes a result into records of a transaction.
type writer struct {
	tx        *tx
	doc       *gql.Document
	variables map[string]any
}

func (w *writer) writeRecord(ctx context.Context, key string, set ast.SelectionSet, obj map[string]any) error {
	prev, err := w.tx.get(ctx, key)
	if err != nil {
		return err
	}

	next := copyRecord(prev)
	if next == nil {
		next = make(Record)
	}
	if err := w.mergeFields(ctx, next, set, obj); err != nil {
		return err
	}

	w.tx.put(key, prev, next)
	return nil
}

// mergeFields writes the selected fields of obj into rec. Fields absent
// from obj are left untouched.
func (w *writer) mergeFields(ctx context.Context, rec map[string]any, set ast.SelectionSet, obj map[string]any) error {
	typename, _ := obj[gql.TypenameField].(string)

	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if !gql.Included(s.Directives, w.variables) {
				continue
			}
			value, ok := obj[gql.ResponseKey(s)]
			if !ok {
				continue
			}

			storageKey, err := gql.StorageKey(s, w.variables)
			if err != nil {
				return err
			}

			stored, err := w.writeValue(ctx, s, value)
			if err != nil {
				return err
			}
			rec[storageKey] = stored

		case *ast.InlineFragment:
			if !gql.Included(s.Directives, w.variables) {
				continue
			}
			if match, _ := w.tx.cache.matches(typename, s.TypeCondition); !match {
				continue
			}
			if err := w.mergeFields(ctx, rec, s.SelectionSet, obj); err != nil {
				return err
			}

		case *ast.FragmentSpread:
			if !gql.Included(s.Directives, w.variables) {
				continue
			}
			frag := w.doc.Fragment(s.Name)
			if frag == nil {
				return fmt.Errorf("%w: %s", ErrUnknownFragment, s.Name)
			}
			if match, _ := w.tx.cache.matches(typename, frag.TypeCondition); !match {
				continue
			}
			if err := w.mergeFields(ctx, rec, frag.SelectionSet, obj); err != nil {
				return err
			}
		}
	}

	return nil
}

func (w *writer) writeValue(ctx context.Context, field *ast.Field, value any) (any, error) {
	if value == nil || len(field.SelectionSet) == 0 {
		return copyValue(value), nil
	}

	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			stored, err := w.writeValue(ctx, field, item)
			if err != nil {
				return nil, err
			}
			out[i] = stored
		}
		return out, nil

	case map[string]any:
		if key, ok := w.tx.cache.keyFunc(v); ok {
			if err := w.writeRecord(ctx, key, field.SelectionSet, v); err != nil {
				return nil, err
			}
			return Reference(key), nil
		}

		embedded := make(map[string]any)
		if err := w.mergeFields(ctx, embedded, field.SelectionSet, v); err != nil {
			return nil, err
		}
		return embedded, nil

	default:
		return value, nil
	}
}
