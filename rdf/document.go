package rdf

import "sort"

// PredicateMap maps predicate URLs to ordered value sequences.
type PredicateMap map[string][]Value

// SubjectUpdates is the payload of a patch: subject URL to its new
// predicate values. A nil PredicateMap removes the subject entirely; an
// empty value slice for a predicate unsets that predicate.
type SubjectUpdates map[string]PredicateMap

// Document is a set of subject/predicate/value triples sharing one
// canonical graph URL. The primary subject equals the graph URL unless
// DefaultSubject redirects it (container virtualization).
type Document struct {
	GraphURL       string
	DefaultSubject string
	Subjects       map[string]PredicateMap
}

// NewDocument creates an empty document with the given graph URL.
func NewDocument(graphURL string) *Document {
	return &Document{
		GraphURL: graphURL,
		Subjects: map[string]PredicateMap{},
	}
}

// Primary returns the subject URL document-level accessors read from.
func (d *Document) Primary() string {
	if d.DefaultSubject != "" {
		return d.DefaultSubject
	}
	return d.GraphURL
}

// Contains reports whether the document has any triples for subject.
func (d *Document) Contains(subject string) bool {
	_, ok := d.Subjects[subject]
	return ok
}

// Add appends values for (subject, predicate), creating the subject node
// if needed.
func (d *Document) Add(subject, predicate string, values ...Value) {
	if d.Subjects == nil {
		d.Subjects = map[string]PredicateMap{}
	}
	node, ok := d.Subjects[subject]
	if !ok {
		node = PredicateMap{}
		d.Subjects[subject] = node
	}
	node[predicate] = append(node[predicate], values...)
}

// Set replaces the values for (primary subject, predicate).
func (d *Document) Set(predicate string, values ...Value) {
	d.SetOn(d.Primary(), predicate, values...)
}

// SetOn replaces the values for (subject, predicate).
func (d *Document) SetOn(subject, predicate string, values ...Value) {
	if d.Subjects == nil {
		d.Subjects = map[string]PredicateMap{}
	}
	node, ok := d.Subjects[subject]
	if !ok {
		node = PredicateMap{}
		d.Subjects[subject] = node
	}
	node[predicate] = values
}

// Value returns the first value of predicate on the primary subject, or
// the zero Value.
func (d *Document) Value(predicate string) Value {
	return d.ValueOn(d.Primary(), predicate)
}

// ValueOn returns the first value of predicate on subject, or the zero
// Value.
func (d *Document) ValueOn(subject, predicate string) Value {
	if node, ok := d.Subjects[subject]; ok {
		if vals := node[predicate]; len(vals) > 0 {
			return vals[0]
		}
	}
	return Value{}
}

// Values returns all values of predicate on the primary subject.
func (d *Document) Values(predicate string) []Value {
	if node, ok := d.Subjects[d.Primary()]; ok {
		return node[predicate]
	}
	return nil
}

// HasValue reports whether (primary subject, predicate) carries a value
// equal to want.
func (d *Document) HasValue(predicate string, want Value) bool {
	for _, v := range d.Values(predicate) {
		if v.Equal(want) {
			return true
		}
	}
	return false
}

// SubjectOf returns the first subject carrying (predicate, object), or "".
// Subjects are scanned in sorted order so the answer is deterministic.
func (d *Document) SubjectOf(predicate string, object Value) string {
	for _, subject := range d.SortedSubjects() {
		for _, v := range d.Subjects[subject][predicate] {
			if v.Equal(object) {
				return subject
			}
		}
	}
	return ""
}

// SortedSubjects returns the subject URLs in lexical order.
func (d *Document) SortedSubjects() []string {
	subjects := make([]string, 0, len(d.Subjects))
	for s := range d.Subjects {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)
	return subjects
}

// Remove deletes a subject node.
func (d *Document) Remove(subject string) {
	delete(d.Subjects, subject)
}

// Merge copies every triple of src into d.
func (d *Document) Merge(src *Document) {
	for subject, node := range src.Subjects {
		for predicate, values := range node {
			d.Add(subject, predicate, values...)
		}
	}
}

// Equal reports whether two documents carry the same subjects, predicates
// and values, with values compared in order.
func (d *Document) Equal(o *Document) bool {
	if d == nil || o == nil {
		return d == o
	}
	if len(d.Subjects) != len(o.Subjects) {
		return false
	}
	for subject, node := range d.Subjects {
		other, ok := o.Subjects[subject]
		if !ok || len(node) != len(other) {
			return false
		}
		for predicate, values := range node {
			otherValues, ok := other[predicate]
			if !ok || len(values) != len(otherValues) {
				return false
			}
			for i, v := range values {
				if !v.Equal(otherValues[i]) {
					return false
				}
			}
		}
	}
	return true
}
