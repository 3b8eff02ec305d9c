package rdf

import (
	"errors"
	"fmt"
)

// ErrBadContainerSpec marks a membership specification that is malformed
// rather than merely unmatched: both subject and object supplied, neither
// supplied, or no predicate. Callers distinguish it from runtime failures
// with errors.Is.
var ErrBadContainerSpec = errors.New("invalid container membership specification")

// MembershipSpec defines a container's membership pattern: exactly one of
// Subject or Object, plus Predicate. Object may be the Any wildcard. An
// optional SortPredicate orders the membership query.
type MembershipSpec struct {
	Subject       string
	Object        Value
	Predicate     string
	SortPredicate string
}

// Validate reports a typed configuration error for malformed specs.
func (m MembershipSpec) Validate() error {
	if m.Predicate == "" {
		return fmt.Errorf("%w: must provide a membership predicate", ErrBadContainerSpec)
	}
	hasSubject := m.Subject != ""
	hasObject := !m.Object.IsZero()
	if hasSubject && hasObject {
		return fmt.Errorf("%w: cannot provide both membership subject and object", ErrBadContainerSpec)
	}
	if !hasSubject && !hasObject {
		return fmt.Errorf("%w: must provide a membership subject or object", ErrBadContainerSpec)
	}
	return nil
}

// Query builds the membership query: "subjects where spec-subject has any
// value for the membership predicate", or the symmetric object form.
func (m MembershipSpec) Query() (Query, error) {
	if err := m.Validate(); err != nil {
		return Query{}, err
	}
	if m.Subject != "" {
		return Query{
			Patterns: []SubjectPattern{{
				Subject: m.Subject,
				All:     []PredicateCondition{{Predicate: m.Predicate, Exists: true}},
			}},
			OrderBy: m.SortPredicate,
		}, nil
	}
	cond := PredicateCondition{Predicate: m.Predicate, Value: m.Object}
	if m.Object.Kind == KindURI && m.Object.URI == Any {
		cond = PredicateCondition{Predicate: m.Predicate, Exists: true}
	}
	return Query{
		Patterns: []SubjectPattern{{All: []PredicateCondition{cond}}},
		OrderBy:  m.SortPredicate,
	}, nil
}
