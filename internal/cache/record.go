package cache

import (
	"context"
	"fmt"

	"github.com/emrgen/linkfeed/internal/gql"
)

const (
	RootQuery        = "ROOT_QUERY"
	RootMutation     = "ROOT_MUTATION"
	RootSubscription = "ROOT_SUBSCRIPTION"

	refField = "__ref"
)

// Record is a normalized entity: field storage keys to scalars, embedded
// objects, lists or references to other records.
type Record = map[string]any

// RecordStore holds normalized records. Get returns a nil record without an
// error when the key is absent. Records passed to Put are owned by the store.
type RecordStore interface {
	Get(ctx context.Context, key string) (Record, error)
	Put(ctx context.Context, records map[string]Record) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

// KeyFunc returns the record key of a result object, false if the object
// has no identity and must be embedded in its parent.
type KeyFunc func(obj map[string]any) (string, bool)

// DefaultKey identifies objects by __typename and id (or _id).
func DefaultKey(obj map[string]any) (string, bool) {
	typename, _ := obj[gql.TypenameField].(string)
	if typename == "" {
		return "", false
	}

	id, ok := obj["id"]
	if !ok || id == nil {
		id, ok = obj["_id"]
	}
	if !ok || id == nil {
		return "", false
	}

	return fmt.Sprintf("%s:%v", typename, id), true
}

// Reference is the stored form of a link to another record.
func Reference(key string) map[string]any {
	return map[string]any{refField: key}
}

// RefKey reports whether v is a reference and returns its target.
func RefKey(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return "", false
	}
	key, ok := m[refField].(string)
	return key, ok
}

func rootKey(kind gql.OperationKind) string {
	switch kind {
	case gql.KindMutation:
		return RootMutation
	case gql.KindSubscription:
		return RootSubscription
	default:
		return RootQuery
	}
}

func rootTypename(key string) string {
	switch key {
	case RootQuery:
		return "Query"
	case RootMutation:
		return "Mutation"
	case RootSubscription:
		return "Subscription"
	}
	return ""
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = copyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}

func copyRecord(r Record) Record {
	if r == nil {
		return nil
	}
	return copyValue(r).(map[string]any)
}
