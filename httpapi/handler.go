// Package httpapi adapts inbound HTTP requests to resource-service
// operations: it parses the path into a request context, dispatches by
// verb, and encodes the operation result.
package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/ldgraph/rdf"
	"github.com/c360studio/ldgraph/service"
)

// maxRequestBodySize limits POST/PATCH body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// Header names carrying request identity. Authentication itself happens
// upstream (gateway or middleware); this layer only reads the result.
const (
	userHeader   = "X-User"
	tenantHeader = "CE-Tenant"
)

// Handler translates HTTP requests into service operations.
type Handler struct {
	svc        *service.Service
	tenant     string
	publicHost string
	logger     *slog.Logger
}

// NewHandler creates a Handler. tenant is the default tenant for
// requests without a CE-Tenant header; publicHost overrides the Host
// header when documents identify themselves, empty means use the
// request's own host.
func NewHandler(svc *service.Service, tenant, publicHost string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, tenant: tenant, publicHost: publicHost, logger: logger}
}

// RegisterHTTPHandlers registers all handlers on mux. The resource
// handler owns the root: every path that is not /health or /metrics is
// interpreted as a resource address.
func (h *Handler) RegisterHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", h.handleResource)
}

// ----------------------------------------------------------------------------
// GET /health
// ----------------------------------------------------------------------------

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"ok"}`)
}

// ----------------------------------------------------------------------------
// Resource dispatch
// ----------------------------------------------------------------------------

// handleResource parses the request into a context and dispatches on
// the HTTP method. Every outcome flows through writeResult so metrics
// see all statuses.
func (h *Handler) handleResource(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	rc, ok := h.requestContext(r)
	if !ok {
		res := service.Result{
			Status: http.StatusBadRequest,
			Body: []service.ErrorPair{{
				Message: fmt.Sprintf("4001 bad path: %s (trailing / or path too short or other problem)", r.URL.Path),
			}},
		}
		h.writeResult(w, r, res, start)
		return
	}

	var res service.Result
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		res = h.svc.GetDocument(r.Context(), rc)
	case http.MethodPost:
		res = h.dispatchPost(r, rc)
	case http.MethodPatch:
		res = h.dispatchPatch(r, rc)
	case http.MethodDelete:
		res = h.svc.DeleteDocument(r.Context(), rc)
	case http.MethodPut:
		res = h.svc.PutDocument(r.Context(), rc)
	default:
		res = service.Result{Status: http.StatusMethodNotAllowed, Body: "Method not allowed"}
	}

	h.writeResult(w, r, res, start)
}

// dispatchPost discriminates the three POST shapes by body content: a
// graph-pattern query (wrapped in $query/$orderby or using a wildcard
// subject), an action envelope, or a document to create.
func (h *Handler) dispatchPost(r *http.Request, rc service.RequestContext) service.Result {
	body, err := readBody(r)
	if err != nil {
		return bodyError(err)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return service.Result{
			Status: http.StatusBadRequest,
			Body:   []service.ErrorPair{{Message: "4002 request body must be a JSON object"}},
		}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return service.Result{
			Status: http.StatusBadRequest,
			Body:   []service.ErrorPair{{Message: fmt.Sprintf("4002 malformed JSON: %v", err)}},
		}
	}

	switch {
	case isQueryBody(top):
		q, err := rdf.ParseQuery(trimmed)
		if err != nil {
			return service.Result{
				Status: http.StatusBadRequest,
				Body:   []service.ErrorPair{{Message: fmt.Sprintf("4003 %v", err)}},
			}
		}
		return h.svc.ExecuteQuery(r.Context(), rc, q)
	case isActionBody(top):
		return h.svc.ExecuteAction(r.Context(), rc, trimmed)
	default:
		doc, err := rdf.ParseDocument(trimmed, rc.RequestURL())
		if err != nil {
			return service.Result{
				Status: http.StatusBadRequest,
				Body:   []service.ErrorPair{{Message: fmt.Sprintf("4002 %v", err)}},
			}
		}
		return h.svc.CreateDocument(r.Context(), rc, doc, "")
	}
}

// dispatchPatch decodes the two-element patch envelope
// [modificationCount, {subject: {predicate: value}}].
func (h *Handler) dispatchPatch(r *http.Request, rc service.RequestContext) service.Result {
	body, err := readBody(r)
	if err != nil {
		return bodyError(err)
	}

	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope) != 2 {
		return service.Result{
			Status: http.StatusBadRequest,
			Body:   []service.ErrorPair{{Message: "4004 patch body must be [modificationCount, updates]"}},
		}
	}

	// Decode the counter as json.Number so integer range is preserved.
	dec := json.NewDecoder(bytes.NewReader(envelope[0]))
	dec.UseNumber()
	var modCount any
	if err := dec.Decode(&modCount); err != nil {
		return service.Result{
			Status: http.StatusBadRequest,
			Body:   []service.ErrorPair{{Message: "4004 modification count must be an integer"}},
		}
	}

	var rawUpdates map[string]json.RawMessage
	if err := json.Unmarshal(envelope[1], &rawUpdates); err != nil {
		return service.Result{
			Status: http.StatusBadRequest,
			Body:   []service.ErrorPair{{Message: fmt.Sprintf("4002 malformed updates: %v", err)}},
		}
	}
	updates, err := rdf.ParseSubjectUpdates(rawUpdates)
	if err != nil {
		return service.Result{
			Status: http.StatusBadRequest,
			Body:   []service.ErrorPair{{Message: fmt.Sprintf("4002 %v", err)}},
		}
	}

	return h.svc.PatchDocument(r.Context(), rc, modCount, updates)
}

// isQueryBody reports whether the decoded top level is a graph-pattern
// query rather than a document: a $query/$orderby wrapper, or a
// wildcard subject key.
func isQueryBody(top map[string]json.RawMessage) bool {
	if _, ok := top["$query"]; ok {
		return true
	}
	if _, ok := top["$orderby"]; ok {
		return true
	}
	for key := range top {
		if strings.HasPrefix(key, rdf.Any) {
			return true
		}
	}
	return false
}

// isActionBody reports whether the body is an action envelope.
func isActionBody(top map[string]json.RawMessage) bool {
	_, ok := top["_action"]
	return ok
}

// ----------------------------------------------------------------------------
// Request parsing
// ----------------------------------------------------------------------------

// requestContext resolves the request into an operation context. The
// second return is false when the path shape is invalid (trailing
// slash or empty segment).
func (h *Handler) requestContext(r *http.Request) (service.RequestContext, bool) {
	rc := service.RequestContext{
		Tenant:      h.tenant,
		QueryString: r.URL.RawQuery,
		Host:        r.Host,
		User:        r.Header.Get(userHeader),
	}
	if t := r.Header.Get(tenantHeader); t != "" {
		rc.Tenant = t
	}
	if h.publicHost != "" {
		rc.Host = h.publicHost
	}

	path := r.URL.Path
	if path == "/" {
		return rc, true
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for _, seg := range segments {
		if seg == "" {
			return rc, false
		}
	}
	rc.Namespace = segments[0]
	if len(segments) > 1 {
		rc.DocumentID = segments[1]
	}
	if len(segments) > 2 {
		rc.ExtraSegments = segments[2:]
	}
	return rc, true
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(nil, r.Body, maxRequestBodySize))
}

func bodyError(err error) service.Result {
	return service.Result{
		Status: http.StatusBadRequest,
		Body:   []service.ErrorPair{{Message: fmt.Sprintf("4002 could not read request body: %v", err)}},
	}
}

// ----------------------------------------------------------------------------
// Response encoding
// ----------------------------------------------------------------------------

// writeResult encodes an operation result onto the response writer and
// records metrics. String bodies go out as plain text, everything else
// as JSON.
func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, res service.Result, start time.Time) {
	for _, header := range res.Headers {
		w.Header().Set(header.Name, header.Value)
	}

	switch body := res.Body.(type) {
	case nil:
		w.WriteHeader(res.Status)
	case string:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(res.Status)
		fmt.Fprintln(w, body)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(res.Status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			// Response already committed; log only.
			h.logger.Error("failed to encode response body",
				"path", r.URL.Path,
				"status", res.Status,
				"error", err)
		}
	}

	recordRequest(r.Method, res.Status, time.Since(start).Seconds())

	if res.Status >= 500 {
		h.logger.Error("operation failed", "method", r.Method, "path", r.URL.Path, "status", res.Status)
	} else {
		h.logger.Debug("operation complete", "method", r.Method, "path", r.URL.Path, "status", res.Status)
	}
}
