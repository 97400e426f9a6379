package gql

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

// OperationKind is the kind of the single operation carried by a Document.
type OperationKind string

const (
	KindQuery        OperationKind = "query"
	KindMutation     OperationKind = "mutation"
	KindSubscription OperationKind = "subscription"
)

const TypenameField = "__typename"

var (
	// ErrNoOperation is returned when a document declares no operation.
	ErrNoOperation = errors.New("document has no operation")
	// ErrMultipleOperations is returned when a document declares more than one operation.
	ErrMultipleOperations = errors.New("document has more than one operation")
)

var parsed sync.Map // source -> *Document

// Document is a parsed GraphQL document holding exactly one operation and
// any number of fragment definitions.
type Document struct {
	Source string

	doc       *ast.QueryDocument
	operation *ast.OperationDefinition

	typenameOnce sync.Once
	typename     *Document
	typenameErr  error
}

// Parse parses src into a Document. Parsed documents are memoized by source.
func Parse(src string) (*Document, error) {
	if d, ok := parsed.Load(src); ok {
		return d.(*Document), nil
	}

	d, err := parse(src)
	if err != nil {
		return nil, err
	}

	actual, _ := parsed.LoadOrStore(src, d)
	return actual.(*Document), nil
}

// MustParse is Parse for package level declarations.
func MustParse(src string) *Document {
	d, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return d
}

func parse(src string) (*Document, error) {
	doc, perr := parser.ParseQuery(&ast.Source{Input: src})
	if perr != nil {
		return nil, fmt.Errorf("parse document: %w", perr)
	}

	switch len(doc.Operations) {
	case 0:
		return nil, ErrNoOperation
	case 1:
	default:
		return nil, ErrMultipleOperations
	}

	return &Document{
		Source:    src,
		doc:       doc,
		operation: doc.Operations[0],
	}, nil
}

// Kind returns the operation kind.
func (d *Document) Kind() OperationKind {
	switch d.operation.Operation {
	case ast.Mutation:
		return KindMutation
	case ast.Subscription:
		return KindSubscription
	default:
		return KindQuery
	}
}

// Name returns the operation name, empty for anonymous operations.
func (d *Document) Name() string {
	return d.operation.Name
}

// SelectionSet returns the root selection set of the operation.
func (d *Document) SelectionSet() ast.SelectionSet {
	return d.operation.SelectionSet
}

// Fragment looks up a fragment definition by name.
func (d *Document) Fragment(name string) *ast.FragmentDefinition {
	return d.doc.Fragments.ForName(name)
}

// Request builds the wire request for the document.
func (d *Document) Request(variables map[string]any) *Request {
	return &Request{
		Query:         d.Source,
		OperationName: d.operation.Name,
		Variables:     variables,
	}
}

// WithTypename returns a document that selects __typename in every object
// selection set below the operation root. The result is computed once.
func (d *Document) WithTypename() (*Document, error) {
	d.typenameOnce.Do(func() {
		// mutate a fresh tree, the memoized one is shared
		doc, perr := parser.ParseQuery(&ast.Source{Input: d.Source})
		if perr != nil {
			d.typenameErr = fmt.Errorf("parse document: %w", perr)
			return
		}

		for _, op := range doc.Operations {
			for _, sel := range op.SelectionSet {
				addTypename(sel)
			}
		}
		for _, frag := range doc.Fragments {
			frag.SelectionSet = withTypename(frag.SelectionSet)
		}

		var buf bytes.Buffer
		formatter.NewFormatter(&buf).FormatQueryDocument(doc)

		d.typename = &Document{
			Source:    buf.String(),
			doc:       doc,
			operation: doc.Operations[0],
		}
		d.typename.typenameOnce.Do(func() {})
		d.typename.typename = d.typename
	})

	return d.typename, d.typenameErr
}

func addTypename(sel ast.Selection) {
	switch s := sel.(type) {
	case *ast.Field:
		if len(s.SelectionSet) > 0 {
			s.SelectionSet = withTypename(s.SelectionSet)
		}
	case *ast.InlineFragment:
		for _, child := range s.SelectionSet {
			addTypename(child)
		}
	}
}

func withTypename(set ast.SelectionSet) ast.SelectionSet {
	has := false
	for _, sel := range set {
		addTypename(sel)
		if f, ok := sel.(*ast.Field); ok && f.Name == TypenameField && (f.Alias == "" || f.Alias == f.Name) {
			has = true
		}
	}
	if has {
		return set
	}

	return append(set, &ast.Field{Alias: TypenameField, Name: TypenameField})
}
