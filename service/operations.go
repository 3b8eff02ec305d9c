package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/c360studio/ldgraph/access"
	"github.com/c360studio/ldgraph/rdf"
	"github.com/c360studio/ldgraph/storage"
	"github.com/c360studio/ldgraph/tracking"
	"github.com/c360studio/ldgraph/vocabulary"
)

// GetDocument handles a fetch. Without a document id it renders the
// namespace collection as a container; otherwise it fetches the
// document, enforces read permission, and completes the result.
func (s *Service) GetDocument(ctx context.Context, rc RequestContext) Result {
	// Access checking gates anonymous reads too: an unauthenticated
	// request never reaches the store when checking is enabled.
	if s.checkAccess && !rc.Authenticated() {
		return unauthorized()
	}
	if rc.DocumentID == "" {
		return s.getCollection(ctx, rc)
	}
	if rc.Namespace == "" {
		return notFound(fmt.Sprintf("no resource with the URL: %s", rc.RequestURL()))
	}
	doc, err := s.store.Get(ctx, rc.User, rc.Scope(), rc.DocumentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(fmt.Sprintf("no resource with the URL: %s", rc.RequestURL()))
		}
		return internalError(err)
	}
	if s.checkAccess {
		perms, err := s.permissions(ctx, rc, doc)
		if err != nil {
			return internalError(err)
		}
		if !perms.Has(access.Read) {
			return forbidden()
		}
	}
	return s.completeResult(ctx, rc, doc)
}

// CreateDocument handles a POST that means "create": it resolves the
// target container's non-member properties, then inserts the document
// through it.
func (s *Service) CreateDocument(ctx context.Context, rc RequestContext, doc *rdf.Document, resourceID string) Result {
	qs := "non-member-properties"
	if rc.QueryString != "" {
		qs = rc.QueryString + "?non-member-properties"
	}
	res := s.GetDocument(ctx, rc.WithQueryString(qs))
	if res.Status != http.StatusOK {
		return res
	}
	container, ok := res.Body.(*rdf.Document)
	if !ok {
		return internalError(fmt.Errorf("container fetch returned %T", res.Body))
	}
	return s.insertDocument(ctx, rc, container, doc, resourceID)
}

func (s *Service) insertDocument(ctx context.Context, rc RequestContext, container, doc *rdf.Document, resourceID string) Result {
	if !rc.Authenticated() {
		return unauthorized()
	}
	if s.checkAccess {
		perms, err := s.permissions(ctx, rc, container)
		if err != nil {
			return internalError(err)
		}
		if !perms.Has(access.Create) {
			return forbidden()
		}
	}
	// The document's subjects are relative to the resource-to-be.
	doc.GraphURL = ""
	if res, ok := s.completeForContainerInsertion(doc, container); !ok {
		return res
	}
	s.completeForStorageInsertion(rc, doc)

	createdDoc, location, err := s.store.Create(ctx, rc.User, rc.Scope(), doc, resourceID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrSystemProperty):
			return badRequest(ErrorPair{Message: fmt.Sprintf("4002 %v", err)})
		case errors.Is(err, storage.ErrConflict):
			return Result{
				Status:  http.StatusConflict,
				Headers: []Header{{Name: "Location", Value: location}},
				Body:    []ErrorPair{{Message: fmt.Sprintf("4090 %v", err)}},
			}
		default:
			return internalError(err)
		}
	}
	s.emitChange(ctx, rc, tracking.Creation, location)
	// Completion enriches the created document; its status is not the
	// operation's status.
	s.completeResult(ctx, rc, createdDoc)
	return created(location, createdDoc)
}

// completeForContainerInsertion stores the membership triple implied by
// the target container in the new document.
func (s *Service) completeForContainerInsertion(doc, container *rdf.Document) (Result, bool) {
	spec := membershipSpecOf(container)
	if err := spec.Validate(); err != nil {
		return badRequest(ErrorPair{Message: fmt.Sprintf("4003 %v", err)}), false
	}
	if spec.Subject != "" {
		// The empty URI is the relative address of the resource-to-be.
		doc.Add(spec.Subject, spec.Predicate, rdf.URIRef(""))
	} else {
		doc.Add("", spec.Predicate, spec.Object)
	}
	return Result{}, true
}

// completeForStorageInsertion stamps owner and default resource group.
func (s *Service) completeForStorageInsertion(rc RequestContext, doc *rdf.Document) {
	doc.SetOn("", vocabulary.CEOwner, rdf.URIRef(rc.User))
	if doc.ValueOn("", vocabulary.ACResourceGroup).IsZero() {
		doc.SetOn("", vocabulary.ACResourceGroup, s.defaultResourceGroup(rc))
	}
}

// PatchDocument applies per-subject updates under the optimistic
// concurrency protocol and returns the re-fetched document. A failed
// re-fetch after a successful patch reports success with a warning
// rather than masking the committed mutation.
func (s *Service) PatchDocument(ctx context.Context, rc RequestContext, modCount any, updates rdf.SubjectUpdates) Result {
	if !rc.Authenticated() {
		return unauthorized()
	}
	if rc.Namespace == "" {
		return badPath(rc)
	}
	mc, valid := integerModCount(modCount)
	if !valid {
		return badRequest(ErrorPair{Message: "4004 modification count must be an integer"})
	}
	err := s.store.Patch(ctx, rc.User, rc.Scope(), rc.DocumentID, mc, updates)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return notFound(fmt.Sprintf("no resource with the URL: %s", rc.DocumentURL()))
		case errors.Is(err, storage.ErrConflict):
			return conflict(fmt.Sprintf("4090 %v", err))
		case errors.Is(err, storage.ErrSystemProperty):
			return badRequest(ErrorPair{Message: fmt.Sprintf("4002 %v", err)})
		default:
			return internalError(err)
		}
	}
	s.emitChange(ctx, rc, tracking.Modification, rc.DocumentURL())
	refetched := s.GetDocument(ctx, rc)
	if refetched.Status == http.StatusOK {
		return Result{Status: http.StatusOK, Headers: refetched.Headers, Body: refetched.Body}
	}
	return ok(fmt.Sprintf("Patch was successful but getting the document after returned %d", refetched.Status))
}

// DeleteDocument removes a document, or drops the namespace's
// collections when no document id is addressed.
func (s *Service) DeleteDocument(ctx context.Context, rc RequestContext) Result {
	if !rc.Authenticated() {
		return unauthorized()
	}
	if rc.DocumentID == "" {
		return s.dropCollection(ctx, rc)
	}
	if rc.Namespace == "" {
		return badPath(rc)
	}
	if err := s.store.Delete(ctx, rc.User, rc.Scope(), rc.DocumentID); err != nil {
		return internalError(err)
	}
	s.emitChange(ctx, rc, tracking.Deletion, rc.DocumentURL())
	return noContent()
}

func (s *Service) dropCollection(ctx context.Context, rc RequestContext) Result {
	if rc.Namespace == "" {
		return badPath(rc)
	}
	if err := s.store.DropCollection(ctx, rc.User, rc.Scope()); err != nil {
		return internalError(err)
	}
	return noContent()
}

// ExecuteQuery runs a graph-pattern query. Queries are safe and
// idempotent; results are returned without per-document permission
// filtering (container contexts pre-apply the constraint in the query
// predicate instead).
func (s *Service) ExecuteQuery(ctx context.Context, rc RequestContext, q rdf.Query) Result {
	if !rc.Authenticated() {
		return unauthorized()
	}
	if rc.Namespace == "" || rc.DocumentID != "" {
		return badPath(rc)
	}
	results, err := s.store.Query(ctx, rc.User, rc.Scope(), q)
	if err != nil {
		if errors.Is(err, rdf.ErrBadContainerSpec) {
			return badRequest(ErrorPair{Message: fmt.Sprintf("4003 %v", err)})
		}
		return internalError(err)
	}
	return ok(results)
}

// ExecuteAction handles POSTs that are neither create nor query. The
// base service knows no actions.
func (s *Service) ExecuteAction(ctx context.Context, rc RequestContext, body json.RawMessage) Result {
	if !rc.Authenticated() {
		return unauthorized()
	}
	return badRequest(ErrorPair{Message: "4005 unknown action"})
}

// PutDocument rejects unconditional replacement.
func (s *Service) PutDocument(ctx context.Context, rc RequestContext) Result {
	return Result{
		Status: http.StatusMethodNotAllowed,
		Body:   []ErrorPair{{Message: "4050 PUT not allowed"}},
	}
}

// integerModCount accepts the modification count in whichever numeric
// shape the wire decoder produced, rejecting non-integral values.
func integerModCount(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}
