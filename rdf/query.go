package rdf

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Any is the wildcard marker in graph patterns: as a subject it means
// "any subject", as a value it means "predicate has some value".
const Any = "_any"

// PredicateCondition constrains one predicate of a subject pattern.
// Exactly one of Exists, In or Value is meaningful: Exists when set, In
// when non-nil, otherwise equality with Value.
type PredicateCondition struct {
	Predicate string
	Exists    bool
	In        []Value
	Value     Value
}

// SubjectPattern constrains one subject. An empty Subject matches any
// subject. All conditions are conjunctive; Any conditions are disjunctive
// (at least one must hold).
type SubjectPattern struct {
	Subject string
	All     []PredicateCondition
	Any     []PredicateCondition
}

// Query is a graph-pattern query: a conjunction of subject patterns with
// an optional ordering predicate. The zero Query matches every document.
type Query struct {
	Patterns []SubjectPattern
	OrderBy  string
}

// ParseQuery decodes the wire form of a query: a mapping from subject URL
// (or "_any"-prefixed wildcard) to predicate conditions, optionally
// wrapped in {"$query": ..., "$orderby": {predicate: 1}}.
func ParseQuery(data []byte) (Query, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Query{}, fmt.Errorf("parse query: %w", err)
	}
	return queryFromRaw(raw)
}

func queryFromRaw(raw map[string]any) (Query, error) {
	var q Query
	if inner, ok := raw["$query"]; ok {
		body, ok := inner.(map[string]any)
		if !ok {
			return Query{}, fmt.Errorf("$query must be an object, got %T", inner)
		}
		parsed, err := queryFromRaw(body)
		if err != nil {
			return Query{}, err
		}
		q = parsed
		if rawOrder, ok := raw["$orderby"].(map[string]any); ok {
			for predicate := range rawOrder {
				q.OrderBy = predicate
				break
			}
		}
		return q, nil
	}
	for subject, rawNode := range raw {
		node, ok := rawNode.(map[string]any)
		if !ok {
			return Query{}, fmt.Errorf("subject %s must map to an object, got %T", subject, rawNode)
		}
		pattern := SubjectPattern{}
		if !strings.HasPrefix(subject, Any) {
			pattern.Subject = subject
		}
		for predicate, rawValue := range node {
			if predicate == "$or" {
				branches, ok := rawValue.([]any)
				if !ok {
					return Query{}, fmt.Errorf("$or must be an array, got %T", rawValue)
				}
				for _, branch := range branches {
					clause, ok := branch.(map[string]any)
					if !ok {
						return Query{}, fmt.Errorf("$or branch must be an object, got %T", branch)
					}
					for pred, val := range clause {
						cond, err := conditionFromRaw(pred, val)
						if err != nil {
							return Query{}, err
						}
						pattern.Any = append(pattern.Any, cond)
					}
				}
				continue
			}
			cond, err := conditionFromRaw(predicate, rawValue)
			if err != nil {
				return Query{}, err
			}
			pattern.All = append(pattern.All, cond)
		}
		q.Patterns = append(q.Patterns, pattern)
	}
	return q, nil
}

func conditionFromRaw(predicate string, rawValue any) (PredicateCondition, error) {
	cond := PredicateCondition{Predicate: predicate}
	if s, ok := rawValue.(string); ok && s == Any {
		cond.Exists = true
		return cond, nil
	}
	if m, ok := rawValue.(map[string]any); ok {
		if rawIn, ok := m["$in"]; ok {
			items, ok := rawIn.([]any)
			if !ok {
				return cond, fmt.Errorf("$in must be an array, got %T", rawIn)
			}
			for _, item := range items {
				v, err := decodeValue(item)
				if err != nil {
					return cond, err
				}
				cond.In = append(cond.In, v)
			}
			return cond, nil
		}
	}
	v, err := decodeValue(rawValue)
	if err != nil {
		return cond, err
	}
	cond.Value = v
	return cond, nil
}
