package rdf

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ldgraph/vocabulary"
)

const (
	docURL = "http://localhost:3007/books/1.2"
	pred   = "http://purl.org/dc/terms/title"
)

func TestDocument_Accessors(t *testing.T) {
	doc := NewDocument(docURL)
	doc.Set(pred, LiteralValue("Moby Dick"))

	assert.Equal(t, docURL, doc.Primary())
	assert.True(t, doc.Contains(docURL))
	assert.Equal(t, LiteralValue("Moby Dick"), doc.Value(pred))
	assert.True(t, doc.HasValue(pred, LiteralValue("Moby Dick")))
	assert.False(t, doc.HasValue(pred, LiteralValue("Pierre")))
	assert.True(t, doc.Value("http://example.org/missing").IsZero())

	// Add appends, Set replaces.
	doc.Add(docURL, pred, LiteralValue("The Whale"))
	assert.Len(t, doc.Values(pred), 2)
	doc.Set(pred, LiteralValue("Moby Dick"))
	assert.Len(t, doc.Values(pred), 1)
}

func TestDocument_DefaultSubjectRedirect(t *testing.T) {
	doc := NewDocument(docURL)
	doc.DefaultSubject = "http://localhost:3007/books/9.9"
	doc.SetOn(doc.DefaultSubject, pred, LiteralValue("Typee"))

	assert.Equal(t, LiteralValue("Typee"), doc.Value(pred))
}

func TestDocument_SubjectOf(t *testing.T) {
	doc := NewDocument(docURL)
	doc.Add("http://localhost:3007/books/2.2", vocabulary.RDFType, URIRef(vocabulary.BPContainer))
	doc.Add("http://localhost:3007/books/1.1", vocabulary.RDFType, URIRef(vocabulary.BPContainer))

	// Lexically first subject wins regardless of insertion order.
	assert.Equal(t, "http://localhost:3007/books/1.1",
		doc.SubjectOf(vocabulary.RDFType, URIRef(vocabulary.BPContainer)))
	assert.Equal(t, "", doc.SubjectOf(vocabulary.RDFType, URIRef("http://example.org/other")))
}

func TestDocument_MergeAndEqual(t *testing.T) {
	a := NewDocument(docURL)
	a.Add(docURL, pred, LiteralValue("Moby Dick"))

	b := NewDocument("http://localhost:3007/books/2.2")
	b.Add("http://localhost:3007/books/2.2", pred, LiteralValue("Omoo"))

	a.Merge(b)
	assert.True(t, a.Contains("http://localhost:3007/books/2.2"))
	assert.Equal(t, LiteralValue("Omoo"), a.ValueOn("http://localhost:3007/books/2.2", pred))

	c := NewDocument(docURL)
	c.Add(docURL, pred, LiteralValue("Moby Dick"))
	c.Add("http://localhost:3007/books/2.2", pred, LiteralValue("Omoo"))
	assert.True(t, a.Equal(c))

	c.Add(docURL, pred, LiteralValue("extra"))
	assert.False(t, a.Equal(c))
}

func TestDocument_JSONRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	doc := NewDocument(docURL)
	doc.Set(pred, LiteralValue("Moby Dick"))
	doc.Set(vocabulary.RDFType, URIRef("http://example.org/Book"))
	doc.Set(vocabulary.DCCreated, TypedLiteral(created, vocabulary.XSD+"dateTime"))
	doc.Set("http://example.org/tags", LiteralValue("whale"), LiteralValue("sea"))

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	decoded, err := ParseDocument(data, docURL)
	require.NoError(t, err)

	assert.Equal(t, LiteralValue("Moby Dick"), decoded.Value(pred))
	assert.Equal(t, URIRef("http://example.org/Book"), decoded.Value(vocabulary.RDFType))
	assert.Len(t, decoded.Values("http://example.org/tags"), 2)

	got := decoded.Value(vocabulary.DCCreated)
	require.Equal(t, KindLiteral, got.Kind)
	gotTime, ok := got.Literal.(time.Time)
	require.True(t, ok, "dateTime literal should decode as time.Time")
	assert.True(t, created.Equal(gotTime))
}

func TestDocument_JSONSingleVersusArray(t *testing.T) {
	doc := NewDocument(docURL)
	doc.Set(pred, LiteralValue("one"))

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	// Single value serializes bare, not as a one-element array.
	_, isArray := raw[docURL][pred].([]any)
	assert.False(t, isArray)
}

func TestDocument_JSONNestedGraph(t *testing.T) {
	inner := NewDocument("http://localhost:3007/books/2.2")
	inner.Set(pred, LiteralValue("Omoo"))

	doc := NewDocument(docURL)
	doc.Set(vocabulary.CEGraph, GraphValue(inner))

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	decoded, err := ParseDocument(data, docURL)
	require.NoError(t, err)

	got := decoded.Value(vocabulary.CEGraph)
	require.Equal(t, KindGraph, got.Kind)
	assert.Equal(t, LiteralValue("Omoo"),
		got.Graph.ValueOn("http://localhost:3007/books/2.2", pred))
}

func TestParseSubjectUpdates(t *testing.T) {
	raw := map[string]json.RawMessage{
		"http://localhost:3007/books/1.2": json.RawMessage(
			`{"http://purl.org/dc/terms/title": {"type": "literal", "value": "Pierre"}}`),
		"http://localhost:3007/books/1.2#note": json.RawMessage(`null`),
	}

	updates, err := ParseSubjectUpdates(raw)
	require.NoError(t, err)

	node := updates["http://localhost:3007/books/1.2"]
	require.NotNil(t, node)
	assert.Equal(t, []Value{TypedLiteral("Pierre", "")}, node[pred])

	// Null subject means deletion: present with nil map.
	deleted, present := updates["http://localhost:3007/books/1.2#note"]
	assert.True(t, present)
	assert.Nil(t, deleted)
}

func TestParseDocument_UntypedScalar(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"http://a": {"http://p": 42}}`), "http://a")
	require.NoError(t, err)
	assert.Equal(t, LiteralValue(float64(42)), doc.ValueOn("http://a", "http://p"))
}

func TestParseDocument_Malformed(t *testing.T) {
	_, err := ParseDocument([]byte(`[1,2]`), "http://a")
	assert.Error(t, err)

	_, err = ParseDocument([]byte(`{"http://a": {"http://p": {"type": "wat", "value": 1}}}`), "http://a")
	assert.Error(t, err)
}
