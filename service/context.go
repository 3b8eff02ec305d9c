package service

import (
	"strings"

	"github.com/c360studio/ldgraph/storage"
)

// RequestContext is the resolved path context of one inbound operation.
// It is an immutable value: sub-operations derive a modified copy and
// pass it explicitly instead of mutating shared request state.
type RequestContext struct {
	Tenant        string
	Namespace     string
	DocumentID    string
	ExtraSegments []string
	QueryString   string
	Host          string
	User          string // empty means unauthenticated
}

// Authenticated reports whether the request carries an identified user.
func (rc RequestContext) Authenticated() bool {
	return rc.User != ""
}

// Scope maps the context onto its storage scope.
func (rc RequestContext) Scope() storage.Scope {
	return storage.Scope{Tenant: rc.Tenant, Namespace: rc.Namespace, Host: rc.Host}
}

// Path returns the request path: /namespace[/document-id][/extra...].
func (rc RequestContext) Path() string {
	parts := []string{""}
	if rc.Namespace != "" {
		parts = append(parts, rc.Namespace)
		if rc.DocumentID != "" {
			parts = append(parts, rc.DocumentID)
		}
	}
	parts = append(parts, rc.ExtraSegments...)
	return strings.Join(parts, "/")
}

// RequestURL returns the full request URL including the query string.
func (rc RequestContext) RequestURL() string {
	url := "http://" + rc.Host + rc.Path()
	if rc.QueryString != "" {
		url += "?" + rc.QueryString
	}
	return url
}

// DocumentURL returns the canonical URL of the addressed document.
func (rc RequestContext) DocumentURL() string {
	return storage.DocumentURL(rc.Host, rc.Namespace, rc.DocumentID)
}

// WithQueryString derives a context with a different query string.
func (rc RequestContext) WithQueryString(qs string) RequestContext {
	rc.QueryString = qs
	return rc
}

// WithDocument derives a context addressing another document in the same
// tenant and namespace, with no extra segments or query string.
func (rc RequestContext) WithDocument(namespace, documentID string) RequestContext {
	if namespace != "" {
		rc.Namespace = namespace
	}
	rc.DocumentID = documentID
	rc.ExtraSegments = nil
	rc.QueryString = ""
	return rc
}
