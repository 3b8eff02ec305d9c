package storage

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/c360studio/ldgraph/rdf"
	"github.com/c360studio/ldgraph/vocabulary"
)

// Storage record layout:
//
//	{ "_id": "<lineage.counter>",
//	  "@id": "<canonical URL, site authority replaced by urn:ce: and
//	          periods escaped to %2E>",
//	  "@graph": [ { "@id": "<subject URL, same rewriting>",
//	                "<predicate>": {"type": ..., "value": ..., "datatype": ...}
//	                 or an array of such values },
//	              ... ],
//	  "_modificationCount": n,
//	  "_created": ts, "_createdBy": url,
//	  "_lastModified": ts, "_lastModifiedBy": url,
//	  "_history": [ "<history record URL>", ... ] }
//
// URLs that do not share the site authority are stored untouched.

const storageScheme = "urn:ce:"

// DocumentURL builds the canonical URL for a document.
func DocumentURL(host, namespace, id string) string {
	return "http://" + host + "/" + namespace + "/" + id
}

// CollectionURL builds the canonical URL for a namespace collection.
func CollectionURL(host, namespace string) string {
	return "http://" + host + "/" + namespace
}

// urlToStorage resolves raw against base and rewrites it into the opaque
// internal form when it lives on the site authority. External URLs pass
// through unchanged.
func urlToStorage(raw, host, base string) string {
	abs := raw
	if baseURL, err := url.Parse(base); err == nil {
		if ref, err := url.Parse(raw); err == nil {
			abs = baseURL.ResolveReference(ref).String()
		}
	}
	prefix := "http://" + host
	if abs == prefix {
		return storageScheme
	}
	if strings.HasPrefix(abs, prefix+"/") {
		return storageScheme + strings.ReplaceAll(abs[len(prefix):], ".", "%2E")
	}
	return abs
}

// urlFromStorage rehydrates an opaque internal URL using the caller's
// public host. External URLs pass through unchanged.
func urlFromStorage(stored, host string) string {
	if !strings.HasPrefix(stored, storageScheme) {
		return stored
	}
	path := strings.ReplaceAll(stored[len(storageScheme):], "%2E", ".")
	return "http://" + host + path
}

// predicateToStorage escapes predicate URLs for use as field names; the
// store forbids dots in keys.
func predicateToStorage(predicate string) string {
	return strings.ReplaceAll(predicate, ".", "%2E")
}

func predicateFromStorage(key string) string {
	return strings.ReplaceAll(key, "%2E", ".")
}

// valueToStorage converts one rdf value to its stored form. URI values
// are rewritten; nested graphs recurse into subject arrays.
func valueToStorage(v rdf.Value, host, base string) (any, error) {
	switch v.Kind {
	case rdf.KindURI:
		return bson.M{"type": "uri", "value": urlToStorage(v.URI, host, base)}, nil
	case rdf.KindLiteral:
		stored := bson.M{"type": "literal", "value": v.Literal}
		if v.Datatype != "" {
			stored["datatype"] = v.Datatype
		}
		return stored, nil
	case rdf.KindGraph:
		nested, err := subjectArray(v.Graph, host, base, false)
		if err != nil {
			return nil, err
		}
		return bson.M{"type": "graph", "value": nested}, nil
	default:
		return nil, fmt.Errorf("invalid value kind %d", v.Kind)
	}
}

// valuesToStorage converts an ordered value sequence; single values store
// bare, multiple values store as an array.
func valuesToStorage(values []rdf.Value, host, base string) (any, error) {
	if len(values) == 1 {
		return valueToStorage(values[0], host, base)
	}
	arr := make(bson.A, 0, len(values))
	for _, v := range values {
		stored, err := valueToStorage(v, host, base)
		if err != nil {
			return nil, err
		}
		arr = append(arr, stored)
	}
	return arr, nil
}

// subjectArray maps a document's subjects into the stored @graph array.
// With checkSystem set, any system property on the document's primary
// subject is rejected with ErrSystemProperty.
func subjectArray(doc *rdf.Document, host, base string, checkSystem bool) (bson.A, error) {
	arr := make(bson.A, 0, len(doc.Subjects))
	for _, subject := range doc.SortedSubjects() {
		node := bson.M{}
		for predicate, values := range doc.Subjects[subject] {
			if checkSystem && subject == doc.GraphURL && vocabulary.SystemProperties[predicate] {
				return nil, fmt.Errorf("%w: %s", ErrSystemProperty, predicate)
			}
			stored, err := valuesToStorage(values, host, base)
			if err != nil {
				return nil, err
			}
			node[predicateToStorage(predicate)] = stored
		}
		node["@id"] = urlToStorage(subject, host, base)
		arr = append(arr, node)
	}
	return arr, nil
}

// valueFromStorage converts one stored value back to an rdf value.
func valueFromStorage(raw any, host string) rdf.Value {
	tagged, ok := raw.(bson.M)
	if !ok {
		return rdf.LiteralValue(normalizeLiteral(raw))
	}
	kind, _ := tagged["type"].(string)
	switch kind {
	case "uri":
		uri, _ := tagged["value"].(string)
		return rdf.URIRef(urlFromStorage(uri, host))
	case "graph":
		nested := rdf.NewDocument("")
		fillFromSubjectArray(nested, tagged["value"], host)
		return rdf.GraphValue(nested)
	default:
		datatype, _ := tagged["datatype"].(string)
		return rdf.TypedLiteral(normalizeLiteral(tagged["value"]), datatype)
	}
}

func valuesFromStorage(raw any, host string) []rdf.Value {
	if arr, ok := raw.(bson.A); ok {
		values := make([]rdf.Value, 0, len(arr))
		for _, item := range arr {
			values = append(values, valueFromStorage(item, host))
		}
		return values
	}
	return []rdf.Value{valueFromStorage(raw, host)}
}

// normalizeLiteral maps driver-native scalar types onto the ones the rdf
// model round-trips: bson datetimes become time.Time, int32 widens to
// int64.
func normalizeLiteral(raw any) any {
	switch v := raw.(type) {
	case bson.DateTime:
		return v.Time().UTC()
	case time.Time:
		return v.UTC()
	case int32:
		return int64(v)
	case int:
		return int64(v)
	default:
		return raw
	}
}

func fillFromSubjectArray(doc *rdf.Document, raw any, host string) {
	arr, ok := raw.(bson.A)
	if !ok {
		return
	}
	for _, item := range arr {
		node, ok := item.(bson.M)
		if !ok {
			continue
		}
		storedSubject, _ := node["@id"].(string)
		subject := urlFromStorage(storedSubject, host)
		for key, rawValues := range node {
			if key == "@id" {
				continue
			}
			doc.Add(subject, predicateFromStorage(key), valuesFromStorage(rawValues, host)...)
		}
	}
}

// recordToDocument rehydrates a stored record into a graph document,
// materializing the system properties as predicates on the primary
// subject.
func recordToDocument(record bson.M, host string) *rdf.Document {
	storedURL, _ := record["@id"].(string)
	graphURL := urlFromStorage(storedURL, host)
	doc := rdf.NewDocument(graphURL)
	fillFromSubjectArray(doc, record["@graph"], host)

	primary := graphURL
	if createdBy, ok := record["_createdBy"].(string); ok {
		doc.SetOn(primary, vocabulary.DCCreator, rdf.URIRef(urlFromStorage(createdBy, host)))
	}
	if created, ok := record["_created"]; ok {
		doc.SetOn(primary, vocabulary.DCCreated, rdf.LiteralValue(normalizeLiteral(created)))
	}
	if modCount, ok := record["_modificationCount"]; ok {
		doc.SetOn(primary, vocabulary.CEModificationCount, rdf.LiteralValue(normalizeLiteral(modCount)))
	}
	if lastModified, ok := record["_lastModified"]; ok {
		doc.SetOn(primary, vocabulary.CELastModified, rdf.LiteralValue(normalizeLiteral(lastModified)))
	}
	if lastModifiedBy, ok := record["_lastModifiedBy"].(string); ok {
		doc.SetOn(primary, vocabulary.CELastModifiedBy, rdf.URIRef(urlFromStorage(lastModifiedBy, host)))
	}
	if id, ok := record["_id"].(string); ok {
		doc.SetOn(primary, vocabulary.CEID, rdf.LiteralValue(id))
	}
	if history, ok := record["_history"].(bson.A); ok {
		refs := make([]rdf.Value, 0, len(history))
		for _, item := range history {
			if ref, ok := item.(string); ok {
				refs = append(refs, rdf.URIRef(urlFromStorage(ref, host)))
			}
		}
		if len(refs) > 0 {
			doc.SetOn(primary, vocabulary.CEHistory, refs...)
		}
	}
	if versionOf, ok := record["_versionOf"].(string); ok {
		doc.SetOn(primary, vocabulary.CEVersionOf, rdf.URIRef(urlFromStorage(versionOf, host)))
	}
	return doc
}

// queryToFilter translates a graph-pattern query into the store-native
// filter and sort specification, applying the same URL rewriting as the
// record mapping.
func queryToFilter(q rdf.Query, host, base string) (bson.M, bson.D, error) {
	clauses := make([]bson.M, 0, len(q.Patterns))
	for _, pattern := range q.Patterns {
		elem := bson.M{}
		if pattern.Subject != "" && pattern.Subject != rdf.Any {
			elem["@id"] = urlToStorage(pattern.Subject, host, base)
		}
		for _, cond := range pattern.All {
			key, match, err := conditionToFilter(cond, host, base)
			if err != nil {
				return nil, nil, err
			}
			elem[key] = match
		}
		if len(pattern.Any) > 0 {
			or := make(bson.A, 0, len(pattern.Any))
			for _, cond := range pattern.Any {
				key, match, err := conditionToFilter(cond, host, base)
				if err != nil {
					return nil, nil, err
				}
				or = append(or, bson.M{key: match})
			}
			elem["$or"] = or
		}
		if len(elem) == 0 {
			continue
		}
		clauses = append(clauses, bson.M{"@graph": bson.M{"$elemMatch": elem}})
	}

	var filter bson.M
	switch len(clauses) {
	case 0:
		filter = bson.M{}
	case 1:
		filter = clauses[0]
	default:
		and := make(bson.A, len(clauses))
		for i, c := range clauses {
			and[i] = c
		}
		filter = bson.M{"$and": and}
	}

	var sort bson.D
	if q.OrderBy != "" {
		sort = bson.D{{Key: "@graph." + predicateToStorage(q.OrderBy) + ".value", Value: 1}}
	}
	return filter, sort, nil
}

func conditionToFilter(cond rdf.PredicateCondition, host, base string) (string, any, error) {
	key := predicateToStorage(cond.Predicate)
	switch {
	case cond.Exists:
		return key, bson.M{"$exists": true}, nil
	case cond.In != nil:
		in := make(bson.A, 0, len(cond.In))
		for _, v := range cond.In {
			scalar, err := scalarToStorage(v, host, base)
			if err != nil {
				return "", nil, err
			}
			in = append(in, scalar)
		}
		return key + ".value", bson.M{"$in": in}, nil
	default:
		scalar, err := scalarToStorage(cond.Value, host, base)
		if err != nil {
			return "", nil, err
		}
		return key + ".value", scalar, nil
	}
}

// scalarToStorage yields the comparable stored form of a value: the
// rewritten URL string for URI references, the raw literal otherwise.
func scalarToStorage(v rdf.Value, host, base string) (any, error) {
	switch v.Kind {
	case rdf.KindURI:
		return urlToStorage(v.URI, host, base), nil
	case rdf.KindLiteral:
		return v.Literal, nil
	default:
		return nil, fmt.Errorf("cannot match on value kind %q", v.Kind)
	}
}
