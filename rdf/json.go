package rdf

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/ldgraph/vocabulary"
)

// Wire format: a document serializes as a mapping from subject URL to a
// mapping from predicate URL to a typed value or an ordered array of
// typed values. A typed value is {"type": "uri"|"literal"|"graph",
// "value": ..., "datatype": ...} with datatype present only on literals
// that carry one. Nested graph values serialize as the nested document's
// subject map; the nested graph URL is contextual and not carried.

// ParseDocument decodes the wire form into a Document anchored at
// graphURL.
func ParseDocument(data []byte, graphURL string) (*Document, error) {
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	doc := NewDocument(graphURL)
	if err := fillSubjects(doc, raw); err != nil {
		return nil, err
	}
	return doc, nil
}

func fillSubjects(doc *Document, raw map[string]map[string]any) error {
	for subject, node := range raw {
		for predicate, rawValue := range node {
			values, err := decodeValues(rawValue)
			if err != nil {
				return fmt.Errorf("subject %s predicate %s: %w", subject, predicate, err)
			}
			doc.Add(subject, predicate, values...)
		}
	}
	return nil
}

// ParseSubjectUpdates decodes the patch payload: subject URL to predicate
// map, where a JSON null subject means "remove this subject".
func ParseSubjectUpdates(raw map[string]json.RawMessage) (SubjectUpdates, error) {
	updates := SubjectUpdates{}
	for subject, rawNode := range raw {
		if string(rawNode) == "null" {
			updates[subject] = nil
			continue
		}
		var node map[string]any
		if err := json.Unmarshal(rawNode, &node); err != nil {
			return nil, fmt.Errorf("subject %s: %w", subject, err)
		}
		pm := PredicateMap{}
		for predicate, rawValue := range node {
			if rawValue == nil {
				pm[predicate] = []Value{}
				continue
			}
			values, err := decodeValues(rawValue)
			if err != nil {
				return nil, fmt.Errorf("subject %s predicate %s: %w", subject, predicate, err)
			}
			pm[predicate] = values
		}
		updates[subject] = pm
	}
	return updates, nil
}

// MarshalJSON renders the document in the wire format. Single values
// serialize bare; multiple values serialize as an array.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]any, len(d.Subjects))
	for subject, node := range d.Subjects {
		encoded := make(map[string]any, len(node))
		for predicate, values := range node {
			switch len(values) {
			case 0:
				continue
			case 1:
				encoded[predicate] = encodeValue(values[0])
			default:
				arr := make([]any, len(values))
				for i, v := range values {
					arr[i] = encodeValue(v)
				}
				encoded[predicate] = arr
			}
		}
		out[subject] = encoded
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire format. The graph URL is contextual and
// must be set by the caller.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Subjects = map[string]PredicateMap{}
	return fillSubjects(d, raw)
}

func encodeValue(v Value) map[string]any {
	switch v.Kind {
	case KindURI:
		return map[string]any{"type": "uri", "value": v.URI}
	case KindLiteral:
		out := map[string]any{"type": "literal"}
		if t, ok := v.Literal.(time.Time); ok {
			out["value"] = t.UTC().Format(time.RFC3339Nano)
			if v.Datatype == "" {
				out["datatype"] = vocabulary.XSD + "dateTime"
			} else {
				out["datatype"] = v.Datatype
			}
			return out
		}
		out["value"] = v.Literal
		if v.Datatype != "" {
			out["datatype"] = v.Datatype
		}
		return out
	case KindGraph:
		nested := map[string]map[string]any{}
		if v.Graph != nil {
			for subject, node := range v.Graph.Subjects {
				encoded := make(map[string]any, len(node))
				for predicate, values := range node {
					if len(values) == 1 {
						encoded[predicate] = encodeValue(values[0])
						continue
					}
					arr := make([]any, len(values))
					for i, val := range values {
						arr[i] = encodeValue(val)
					}
					encoded[predicate] = arr
				}
				nested[subject] = encoded
			}
		}
		return map[string]any{"type": "graph", "value": nested}
	default:
		return map[string]any{"type": "invalid"}
	}
}

func decodeValues(raw any) ([]Value, error) {
	if arr, ok := raw.([]any); ok {
		values := make([]Value, 0, len(arr))
		for _, item := range arr {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, err
	}
	return []Value{v}, nil
}

func decodeValue(raw any) (Value, error) {
	tagged, ok := raw.(map[string]any)
	if !ok {
		// Untyped JSON scalars are accepted as plain literals.
		return LiteralValue(raw), nil
	}
	kind, _ := tagged["type"].(string)
	switch kind {
	case "uri":
		uri, ok := tagged["value"].(string)
		if !ok {
			return Value{}, fmt.Errorf("uri value must be a string, got %T", tagged["value"])
		}
		return URIRef(uri), nil
	case "literal":
		datatype, _ := tagged["datatype"].(string)
		value := tagged["value"]
		if datatype == vocabulary.XSD+"dateTime" {
			if s, ok := value.(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return TypedLiteral(t, datatype), nil
				}
			}
		}
		return TypedLiteral(value, datatype), nil
	case "graph":
		nested, ok := tagged["value"].(map[string]any)
		if !ok {
			return Value{}, fmt.Errorf("graph value must be an object, got %T", tagged["value"])
		}
		doc := NewDocument("")
		for subject, rawNode := range nested {
			node, ok := rawNode.(map[string]any)
			if !ok {
				return Value{}, fmt.Errorf("graph subject %s must be an object", subject)
			}
			for predicate, rawValue := range node {
				values, err := decodeValues(rawValue)
				if err != nil {
					return Value{}, err
				}
				doc.Add(subject, predicate, values...)
			}
		}
		return GraphValue(doc), nil
	default:
		return Value{}, fmt.Errorf("unknown value type %q", kind)
	}
}
