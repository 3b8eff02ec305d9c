package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ldgraph/rdf"
	"github.com/c360studio/ldgraph/service"
	"github.com/c360studio/ldgraph/storage"
	"github.com/c360studio/ldgraph/vocabulary"
)

const (
	aliceURL  = "http://localhost:3007/users/alice"
	titlePred = "http://purl.org/dc/terms/title"
)

// memStore is a minimal in-memory Storage for adapter tests. Dispatch
// and encoding are under test here, not storage semantics, so queries
// return the whole collection and patches apply without history.
type memStore struct {
	mu        sync.Mutex
	next      int
	docs      map[string]*rdf.Document
	lastScope storage.Scope
	lastUser  string
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]*rdf.Document{}}
}

func (m *memStore) observe(user string, scope storage.Scope) {
	m.lastUser = user
	m.lastScope = scope
}

func copyDoc(src *rdf.Document) *rdf.Document {
	out := rdf.NewDocument(src.GraphURL)
	out.DefaultSubject = src.DefaultSubject
	for subject, node := range src.Subjects {
		for predicate, values := range node {
			out.SetOn(subject, predicate, append([]rdf.Value(nil), values...)...)
		}
	}
	return out
}

func (m *memStore) Create(_ context.Context, user string, scope storage.Scope, doc *rdf.Document, resourceID string) (*rdf.Document, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(user, scope)

	id := resourceID
	if id == "" {
		m.next++
		id = fmt.Sprintf("1.%d", m.next)
	}
	location := storage.DocumentURL(scope.Host, scope.Namespace, id)
	if _, exists := m.docs[id]; exists {
		return nil, location, storage.ErrConflict
	}

	stored := rdf.NewDocument(location)
	for subject, node := range doc.Subjects {
		target := subject
		if subject == "" {
			target = location
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
	stored.SetOn(location, vocabulary.CEModificationCount, rdf.LiteralValue(int64(0)))
	m.docs[id] = stored
	return copyDoc(stored), location, nil
}

func (m *memStore) Get(_ context.Context, user string, scope storage.Scope, documentID string) (*rdf.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(user, scope)
	doc, ok := m.docs[documentID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyDoc(doc), nil
}

func (m *memStore) Query(_ context.Context, user string, scope storage.Scope, _ rdf.Query) ([]*rdf.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(user, scope)
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*rdf.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyDoc(m.docs[id]))
	}
	return out, nil
}

func (m *memStore) Delete(_ context.Context, user string, scope storage.Scope, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(user, scope)
	delete(m.docs, documentID)
	return nil
}

func (m *memStore) DropCollection(_ context.Context, user string, scope storage.Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(user, scope)
	m.docs = map[string]*rdf.Document{}
	return nil
}

func (m *memStore) Patch(_ context.Context, user string, scope storage.Scope, documentID string, modCount int64, updates rdf.SubjectUpdates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(user, scope)
	doc, ok := m.docs[documentID]
	if !ok {
		return storage.ErrNotFound
	}
	current, _ := doc.ValueOn(doc.GraphURL, vocabulary.CEModificationCount).Literal.(int64)
	if modCount != storage.DisableConcurrencyCheck && modCount != current {
		return storage.ErrConflict
	}
	for subject, node := range updates {
		if node == nil {
			doc.Remove(subject)
			continue
		}
		for predicate, values := range node {
			doc.SetOn(subject, predicate, values...)
		}
	}
	doc.SetOn(doc.GraphURL, vocabulary.CEModificationCount, rdf.LiteralValue(current+1))
	return nil
}

func (m *memStore) PriorVersions(_ context.Context, _ string, _ storage.Scope, _ []string) ([]*rdf.Document, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(store, service.Options{Logger: logger})
	handler := NewHandler(svc, "main", "localhost:3007", logger)
	mux := http.NewServeMux()
	handler.RegisterHTTPHandlers(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, store
}

func do(t *testing.T, server *httptest.Server, method, path, body string, headers map[string]string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func asUser(user string) map[string]string {
	return map[string]string{userHeader: user}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := do(t, server, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"ok"`)

	resp, _ = do(t, server, http.MethodPost, "/health", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestResource_CreateFetchDelete(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := do(t, server, http.MethodPost, "/books",
		`{"": {"`+titlePred+`": "Moby Dick"}}`, asUser(aliceURL))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, "http://localhost:3007/books/"))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var created map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	node, ok := created[location]
	require.True(t, ok, "created document keyed by its location")
	assert.Equal(t, map[string]any{"type": "literal", "value": "Moby Dick"}, node[titlePred])

	path := strings.TrimPrefix(location, "http://localhost:3007")
	resp, body = do(t, server, http.MethodGet, path, "", asUser(aliceURL))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Moby Dick")

	resp, _ = do(t, server, http.MethodDelete, path, "", asUser(aliceURL))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, server, http.MethodGet, path, "", asUser(aliceURL))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResource_PostQuery(t *testing.T) {
	server, _ := newTestServer(t)
	resp, _ := do(t, server, http.MethodPost, "/books",
		`{"": {"`+titlePred+`": "Moby Dick"}}`, asUser(aliceURL))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := do(t, server, http.MethodPost, "/books",
		`{"$query": {"_any": {"`+titlePred+`": "Moby Dick"}}}`, asUser(aliceURL))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var results []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &results))
	assert.NotEmpty(t, results)

	// A wildcard subject key marks a query even without the wrapper.
	resp, _ = do(t, server, http.MethodPost, "/books",
		`{"_any": {"`+titlePred+`": "Moby Dick"}}`, asUser(aliceURL))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, server, http.MethodPost, "/books", `{"$query": 42}`, asUser(aliceURL))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "4003")
}

func TestResource_PostAction(t *testing.T) {
	server, _ := newTestServer(t)
	resp, body := do(t, server, http.MethodPost, "/books", `{"_action": "rebuild"}`, asUser(aliceURL))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "4005 unknown action")
}

func TestResource_PostMalformedBody(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := do(t, server, http.MethodPost, "/books", `[1, 2]`, asUser(aliceURL))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "4002")

	resp, body = do(t, server, http.MethodPost, "/books", `{broken`, asUser(aliceURL))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "4002 malformed JSON")
}

func TestResource_Patch(t *testing.T) {
	server, _ := newTestServer(t)
	resp, _ := do(t, server, http.MethodPost, "/books",
		`{"": {"`+titlePred+`": "Moby Dick"}}`, asUser(aliceURL))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	location := resp.Header.Get("Location")
	path := strings.TrimPrefix(location, "http://localhost:3007")

	envelope := `[0, {"` + location + `": {"` + titlePred + `": "Pierre"}}]`
	resp, body := do(t, server, http.MethodPatch, path, envelope, asUser(aliceURL))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Pierre")

	// Stale counter.
	resp, body = do(t, server, http.MethodPatch, path, envelope, asUser(aliceURL))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "4090")

	resp, body = do(t, server, http.MethodPatch, path, `{"not": "an envelope"}`, asUser(aliceURL))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "4004 patch body must be")

	resp, body = do(t, server, http.MethodPatch, path, `[1]`, asUser(aliceURL))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "4004")

	resp, body = do(t, server, http.MethodPatch, path, `["zero", {}]`, asUser(aliceURL))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "4004")
}

func TestResource_BadPath(t *testing.T) {
	server, _ := newTestServer(t)

	// A trailing slash yields an empty segment. Double slashes never get
	// here: ServeMux path cleaning redirects them first.
	resp, body := do(t, server, http.MethodGet, "/books/1.1/", "", asUser(aliceURL))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "4001 bad path")

	resp, body = do(t, server, http.MethodGet, "/", "", asUser(aliceURL))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "4001")
}

func TestResource_MethodDispatch(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := do(t, server, http.MethodPut, "/books/1.1", "{}", asUser(aliceURL))
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Contains(t, body, "4050")

	resp, _ = do(t, server, http.MethodOptions, "/books/1.1", "", asUser(aliceURL))
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestResource_IdentityHeaders(t *testing.T) {
	server, store := newTestServer(t)

	resp, _ := do(t, server, http.MethodGet, "/books/1.1", "", asUser(aliceURL))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, aliceURL, store.lastUser)
	assert.Equal(t, "main", store.lastScope.Tenant)
	assert.Equal(t, "books", store.lastScope.Namespace)
	assert.Equal(t, "localhost:3007", store.lastScope.Host)

	headers := asUser(aliceURL)
	headers[tenantHeader] = "acme"
	resp, _ = do(t, server, http.MethodGet, "/books/1.1", "", headers)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "acme", store.lastScope.Tenant)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	// Drive one request through the resource handler so the counters
	// have something to show.
	do(t, server, http.MethodGet, "/books/1.1", "", asUser(aliceURL))

	resp, body := do(t, server, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "ldgraph_requests_total")
	assert.Contains(t, body, "ldgraph_request_duration_seconds")
}
