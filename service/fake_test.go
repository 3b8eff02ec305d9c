package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/c360studio/ldgraph/rdf"
	"github.com/c360studio/ldgraph/storage"
	"github.com/c360studio/ldgraph/vocabulary"
)

// fakeStore is an in-memory Storage. It keeps the engine's observable
// contract: id allocation, relative-reference resolution, system-property
// rejection, the modification-count protocol, and history snapshots.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int
	nextHist int
	docs     map[string]map[string]*rdf.Document // collection key -> id -> document
	versions map[string]*rdf.Document            // history URL -> snapshot
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     map[string]map[string]*rdf.Document{},
		versions: map[string]*rdf.Document{},
	}
}

func collectionKey(scope storage.Scope) string {
	return scope.Tenant + "/" + scope.Namespace
}

func cloneDocument(src *rdf.Document) *rdf.Document {
	out := rdf.NewDocument(src.GraphURL)
	out.DefaultSubject = src.DefaultSubject
	for subject, node := range src.Subjects {
		for predicate, values := range node {
			out.SetOn(subject, predicate, append([]rdf.Value(nil), values...)...)
		}
	}
	return out
}

func (f *fakeStore) Create(_ context.Context, user string, scope storage.Scope, doc *rdf.Document, resourceID string) (*rdf.Document, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for predicate := range doc.Subjects[""] {
		if vocabulary.SystemProperties[predicate] {
			return nil, "", fmt.Errorf("%w: %s", storage.ErrSystemProperty, predicate)
		}
	}
	id := resourceID
	if id == "" {
		f.nextID++
		id = fmt.Sprintf("1.%d", f.nextID)
	}
	location := storage.DocumentURL(scope.Host, scope.Namespace, id)
	key := collectionKey(scope)
	if f.docs[key] == nil {
		f.docs[key] = map[string]*rdf.Document{}
	}
	if _, exists := f.docs[key][id]; exists {
		return nil, location, fmt.Errorf("%w: duplicate id %s", storage.ErrConflict, id)
	}

	stored := rdf.NewDocument(location)
	for subject, node := range doc.Subjects {
		target := subject
		switch {
		case subject == "":
			target = location
		case strings.HasPrefix(subject, "#"):
			target = location + subject
		}
		for predicate, values := range node {
			rewritten := make([]rdf.Value, len(values))
			for i, v := range values {
				if v.Kind == rdf.KindURI && v.URI == "" {
					v = rdf.URIRef(location)
				}
				rewritten[i] = v
			}
			stored.SetOn(target, predicate, rewritten...)
		}
	}
	stored.SetOn(location, vocabulary.CEID, rdf.LiteralValue(id))
	stored.SetOn(location, vocabulary.DCCreator, rdf.URIRef(user))
	stored.SetOn(location, vocabulary.CEModificationCount, rdf.LiteralValue(int64(0)))
	f.docs[key][id] = stored
	return cloneDocument(stored), location, nil
}

func (f *fakeStore) Get(_ context.Context, _ string, scope storage.Scope, documentID string) (*rdf.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[collectionKey(scope)][documentID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (f *fakeStore) Query(_ context.Context, _ string, scope storage.Scope, q rdf.Query) ([]*rdf.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	collection := f.docs[collectionKey(scope)]
	ids := make([]string, 0, len(collection))
	for id := range collection {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var results []*rdf.Document
	for _, id := range ids {
		doc := collection[id]
		matched := true
		for _, pattern := range q.Patterns {
			if !matchPattern(doc, pattern) {
				matched = false
				break
			}
		}
		if matched {
			results = append(results, cloneDocument(doc))
		}
	}
	return results, nil
}

func matchPattern(doc *rdf.Document, pattern rdf.SubjectPattern) bool {
	subjects := doc.SortedSubjects()
	if pattern.Subject != "" {
		if !doc.Contains(pattern.Subject) {
			return false
		}
		subjects = []string{pattern.Subject}
	}
	for _, subject := range subjects {
		if matchOn(doc, subject, pattern) {
			return true
		}
	}
	return false
}

func matchOn(doc *rdf.Document, subject string, pattern rdf.SubjectPattern) bool {
	for _, cond := range pattern.All {
		if !matchCondition(doc, subject, cond) {
			return false
		}
	}
	if len(pattern.Any) == 0 {
		return true
	}
	for _, cond := range pattern.Any {
		if matchCondition(doc, subject, cond) {
			return true
		}
	}
	return false
}

func matchCondition(doc *rdf.Document, subject string, cond rdf.PredicateCondition) bool {
	values := doc.Subjects[subject][cond.Predicate]
	switch {
	case cond.Exists:
		return len(values) > 0
	case cond.In != nil:
		for _, v := range values {
			for _, want := range cond.In {
				if v.Equal(want) {
					return true
				}
			}
		}
		return false
	default:
		for _, v := range values {
			if v.Equal(cond.Value) {
				return true
			}
		}
		return false
	}
}

func (f *fakeStore) Delete(_ context.Context, _ string, scope storage.Scope, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs[collectionKey(scope)], documentID)
	return nil
}

func (f *fakeStore) DropCollection(_ context.Context, _ string, scope storage.Scope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, collectionKey(scope))
	return nil
}

func (f *fakeStore) Patch(_ context.Context, _ string, scope storage.Scope, documentID string, modCount int64, updates rdf.SubjectUpdates) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[collectionKey(scope)][documentID]
	if !ok {
		return storage.ErrNotFound
	}
	location := doc.GraphURL

	for subject, node := range updates {
		if subject != location {
			continue
		}
		for predicate := range node {
			if vocabulary.SystemProperties[predicate] {
				return fmt.Errorf("%w: %s", storage.ErrSystemProperty, predicate)
			}
		}
	}
	current, _ := doc.ValueOn(location, vocabulary.CEModificationCount).Literal.(int64)
	if modCount != storage.DisableConcurrencyCheck && modCount != current {
		return fmt.Errorf("%w: modification count is %d", storage.ErrConflict, current)
	}

	f.nextHist++
	historyURL := storage.DocumentURL(scope.Host, scope.Namespace+"_history", fmt.Sprintf("2.%d", f.nextHist))
	snapshot := cloneDocument(doc)
	snapshot.GraphURL = historyURL
	snapshot.SetOn(historyURL, vocabulary.CEVersionOf, rdf.URIRef(location))
	f.versions[historyURL] = snapshot

	for subject, node := range updates {
		if node == nil {
			doc.Remove(subject)
			continue
		}
		for predicate, values := range node {
			if len(values) == 0 {
				if existing, ok := doc.Subjects[subject]; ok {
					delete(existing, predicate)
				}
				continue
			}
			doc.SetOn(subject, predicate, values...)
		}
	}
	doc.SetOn(location, vocabulary.CEModificationCount, rdf.LiteralValue(current+1))
	doc.Add(location, vocabulary.CEHistory, rdf.URIRef(historyURL))
	return nil
}

func (f *fakeStore) PriorVersions(_ context.Context, _ string, _ storage.Scope, history []string) ([]*rdf.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*rdf.Document
	for _, ref := range history {
		if snapshot, ok := f.versions[ref]; ok {
			out = append(out, cloneDocument(snapshot))
		}
	}
	return out, nil
}
