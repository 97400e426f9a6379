package cache

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/vektah/gqlparser/v2/ast"
)

type getFunc func(ctx context.Context, key string) (Record, error)

// read denormalizes doc from the records reachable through get. It returns
// the keys visited so watchers know what the result depends on, also when
// the read is incomplete.
func (c *Cache) read(ctx context.Context, get getFunc, doc *gql.Document, variables map[string]any) (map[string]any, mapset.Set[string], error) {
	typed, err := doc.WithTypename()
	if err != nil {
		return nil, nil, err
	}

	r := &reader{
		cache:     c,
		get:       get,
		doc:       typed,
		variables: variables,
		deps:      mapset.NewThreadUnsafeSet[string](),
	}

	root := rootKey(typed.Kind())
	data, err := r.readRecord(ctx, root, typed.SelectionSet())
	return data, r.deps, err
}

type reader struct {
	cache     *Cache
	get       getFunc
	doc       *gql.Document
	variables map[string]any
	deps      mapset.Set[string]
	path      []any
}

func (r *reader) missing(field string) error {
	path := make([]any, len(r.path))
	copy(path, r.path)
	return &MissingFieldError{Path: path, Field: field}
}

func (r *reader) readRecord(ctx context.Context, key string, set ast.SelectionSet) (map[string]any, error) {
	r.deps.Add(key)

	rec, err := r.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		if typename := rootTypename(key); typename == "" || len(set) > 0 {
			return nil, r.missing(fmt.Sprintf("<%s>", key))
		}
		rec = Record{}
	}

	out := make(map[string]any)
	if err := r.readFields(ctx, key, rec, set, out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// readFields copies the selected fields of rec into out. strict is false
// inside fragments that matched by guess.
func (r *reader) readFields(ctx context.Context, key string, rec map[string]any, set ast.SelectionSet, out map[string]any, strict bool) error {
	typename, _ := rec[gql.TypenameField].(string)

	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if !gql.Included(s.Directives, r.variables) {
				continue
			}
			responseKey := gql.ResponseKey(s)

			storageKey, err := gql.StorageKey(s, r.variables)
			if err != nil {
				return err
			}

			value, ok := rec[storageKey]
			if !ok {
				if s.Name == gql.TypenameField && rootTypename(key) != "" {
					out[responseKey] = rootTypename(key)
					continue
				}
				if !strict {
					continue
				}
				return r.missing(responseKey)
			}

			r.path = append(r.path, responseKey)
			read, err := r.readValue(ctx, s, value)
			r.path = r.path[:len(r.path)-1]
			if err != nil {
				return err
			}
			out[responseKey] = read

		case *ast.InlineFragment:
			if !gql.Included(s.Directives, r.variables) {
				continue
			}
			match, certain := r.cache.matches(typename, s.TypeCondition)
			if !match {
				continue
			}
			if err := r.readFields(ctx, key, rec, s.SelectionSet, out, strict && certain); err != nil {
				return err
			}

		case *ast.FragmentSpread:
			if !gql.Included(s.Directives, r.variables) {
				continue
			}
			frag := r.doc.Fragment(s.Name)
			if frag == nil {
				return fmt.Errorf("%w: %s", ErrUnknownFragment, s.Name)
			}
			match, certain := r.cache.matches(typename, frag.TypeCondition)
			if !match {
				continue
			}
			if err := r.readFields(ctx, key, rec, frag.SelectionSet, out, strict && certain); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *reader) readValue(ctx context.Context, field *ast.Field, value any) (any, error) {
	if value == nil || len(field.SelectionSet) == 0 {
		return copyValue(value), nil
	}

	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r.path = append(r.path, i)
			read, err := r.readValue(ctx, field, item)
			r.path = r.path[:len(r.path)-1]
			if err != nil {
				return nil, err
			}
			out[i] = read
		}
		return out, nil

	case map[string]any:
		if key, ok := RefKey(v); ok {
			return r.readRecord(ctx, key, field.SelectionSet)
		}

		out := make(map[string]any)
		if err := r.readFields(ctx, "", v, field.SelectionSet, out, true); err != nil {
			return nil, err
		}
		return out, nil

	default:
		return copyValue(value), nil
	}
}
