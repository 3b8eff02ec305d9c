// Package rdf provides the graph document model served by the resource
// server: typed RDF values, documents mapping subjects to predicate/value
// sets, graph-pattern queries, and container membership specifications.
package rdf

import (
	"fmt"
	"reflect"
)

// ValueKind identifies which variant a Value holds.
type ValueKind int

const (
	// KindInvalid is the zero Value. Accessors that find nothing return it.
	KindInvalid ValueKind = iota
	// KindURI is a URI reference.
	KindURI
	// KindLiteral is a literal with an optional datatype.
	KindLiteral
	// KindGraph is a nested sub-graph.
	KindGraph
)

func (k ValueKind) String() string {
	switch k {
	case KindURI:
		return "uri"
	case KindLiteral:
		return "literal"
	case KindGraph:
		return "graph"
	default:
		return "invalid"
	}
}

// Value is a closed tagged variant over the three RDF value forms.
// Exactly the field matching Kind is meaningful.
type Value struct {
	Kind     ValueKind
	URI      string
	Literal  any
	Datatype string
	Graph    *Document
}

// URIRef constructs a URI-reference value.
func URIRef(uri string) Value {
	return Value{Kind: KindURI, URI: uri}
}

// LiteralValue constructs a plain literal value.
func LiteralValue(v any) Value {
	return Value{Kind: KindLiteral, Literal: v}
}

// TypedLiteral constructs a literal value with an explicit datatype IRI.
func TypedLiteral(v any, datatype string) Value {
	return Value{Kind: KindLiteral, Literal: v, Datatype: datatype}
}

// GraphValue constructs a nested sub-graph value.
func GraphValue(d *Document) Value {
	return Value{Kind: KindGraph, Graph: d}
}

// IsZero reports whether v is the zero Value.
func (v Value) IsZero() bool {
	return v.Kind == KindInvalid
}

// Equal reports deep equality of two values.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindURI:
		return v.URI == o.URI
	case KindLiteral:
		return v.Datatype == o.Datatype && reflect.DeepEqual(v.Literal, o.Literal)
	case KindGraph:
		if v.Graph == nil || o.Graph == nil {
			return v.Graph == o.Graph
		}
		return v.Graph.Equal(o.Graph)
	default:
		return true
	}
}

// String renders the value for logs and error messages.
func (v Value) String() string {
	switch v.Kind {
	case KindURI:
		return v.URI
	case KindLiteral:
		return fmt.Sprintf("%v", v.Literal)
	case KindGraph:
		if v.Graph != nil {
			return v.Graph.GraphURL
		}
		return "<nil graph>"
	default:
		return "<invalid>"
	}
}
