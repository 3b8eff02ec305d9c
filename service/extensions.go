package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/c360studio/ldgraph/rdf"
	"github.com/c360studio/ldgraph/vocabulary"
)

// The helpers in this file are the extension surface domain services
// build on: declaring containers at templated URLs, synthesizing virtual
// resources addressed through a query string, and attaching owned
// containers to documents. URL templates contain a single %s placeholder
// that expands to "", "/new", or a prototype fragment.

// absoluteURL resolves a relative reference against the request URL.
func absoluteURL(rc RequestContext, relative string) string {
	base, err := url.Parse(rc.RequestURL())
	if err != nil {
		return relative
	}
	ref, err := url.Parse(relative)
	if err != nil {
		return relative
	}
	return base.ResolveReference(ref).String()
}

// AddContainer declares a container resource in document. The membership
// resource is the subject when memberIsObject is set, the object
// otherwise. Zero-valued group and owner fall back to the default
// resource group and no explicit owner.
func (s *Service) AddContainer(rc RequestContext, doc *rdf.Document, urlTemplate, membershipResource, membershipPredicate string, memberIsObject bool, containerResourceGroup, containerOwner rdf.Value, prototypes map[string]string) {
	containerURL := fmt.Sprintf(urlTemplate, "")
	newURL := fmt.Sprintf(urlTemplate, "/new")
	if containerResourceGroup.IsZero() {
		containerResourceGroup = s.defaultResourceGroup(rc)
	}
	membershipPosition := vocabulary.BPMembershipObject
	if memberIsObject {
		membershipPosition = vocabulary.BPMembershipSubject
	}
	doc.SetOn(containerURL, vocabulary.RDFType, rdf.URIRef(vocabulary.BPContainer))
	doc.SetOn(containerURL, membershipPosition, rdf.URIRef(membershipResource))
	doc.SetOn(containerURL, vocabulary.BPMembershipPredicate, rdf.URIRef(membershipPredicate))
	doc.SetOn(containerURL, vocabulary.BPNewMemberLink, rdf.URIRef(newURL))
	doc.SetOn(containerURL, vocabulary.ACResourceGroup, containerResourceGroup)
	if !containerOwner.IsZero() {
		doc.SetOn(containerURL, vocabulary.CEOwner, containerOwner)
	}
	s.addNewMemberInstructions(rc, doc, urlTemplate, prototypes)
}

// addNewMemberInstructions attaches the new-member instructions resource
// and any creation prototypes, redirecting the document's graph URL when
// the request addresses one of them.
func (s *Service) addNewMemberInstructions(rc RequestContext, doc *rdf.Document, urlTemplate string, prototypes map[string]string) {
	containerURL := fmt.Sprintf(urlTemplate, "")
	newURL := fmt.Sprintf(urlTemplate, "/new")
	requestURL := rc.RequestURL()
	if containerURL == requestURL {
		doc.GraphURL = containerURL
	} else if newURL == requestURL {
		doc.GraphURL = newURL
	}
	doc.SetOn(newURL, vocabulary.RDFType, rdf.URIRef(vocabulary.BPNewMemberInstructions))
	doc.SetOn(newURL, vocabulary.BPNewMemberContainer, rdf.URIRef(containerURL))
	if len(prototypes) == 0 {
		return
	}
	index := 0
	prototypeRefs := make([]rdf.Value, 0, len(prototypes))
	for label, prototypeURL := range prototypes {
		protoURL := fmt.Sprintf(urlTemplate, fmt.Sprintf("/prototype-%d", index))
		if protoURL == requestURL {
			doc.GraphURL = protoURL
		}
		index++
		doc.SetOn(protoURL, vocabulary.RDFSLabel, rdf.LiteralValue(label))
		doc.SetOn(protoURL, vocabulary.BPNewMemberPrototype, rdf.URIRef(resolveAgainst(containerURL, prototypeURL)))
		prototypeRefs = append(prototypeRefs, rdf.URIRef(protoURL))
	}
	doc.SetOn(newURL, vocabulary.BPNewMemberPrototypes, prototypeRefs...)
}

func resolveAgainst(base, relative string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return relative
	}
	ref, err := url.Parse(relative)
	if err != nil {
		return relative
	}
	return baseURL.ResolveReference(ref).String()
}

// CreateContainer builds a standalone container document at the
// templated URL.
func (s *Service) CreateContainer(rc RequestContext, urlTemplate, membershipResource, membershipPredicate string, memberIsObject bool, prototypes map[string]string) *rdf.Document {
	doc := rdf.NewDocument(fmt.Sprintf(urlTemplate, ""))
	s.AddContainer(rc, doc, urlTemplate, membershipResource, membershipPredicate, memberIsObject, rdf.Value{}, rdf.Value{}, prototypes)
	return doc
}

// ContainerFromQueryString synthesizes a container whose membership
// resource is carried URL-encoded in the request's query string.
func (s *Service) ContainerFromQueryString(ctx context.Context, rc RequestContext, urlTemplate, membershipPredicate string, memberIsObject bool, prototypes map[string]string) Result {
	qs := rc.QueryString
	if idx := len(qs) - len("?"+nonMemberProperties); idx >= 0 && qs[idx:] == "?"+nonMemberProperties {
		qs = qs[:idx]
	}
	unquoted, err := url.QueryUnescape(qs)
	if err != nil {
		return badRequest(ErrorPair{Message: fmt.Sprintf("4006 malformed query string: %v", err)})
	}
	membershipResource := absoluteURL(rc, unquoted)
	doc := s.CreateContainer(rc, urlTemplate, membershipResource, membershipPredicate, memberIsObject, prototypes)
	return s.completeResult(ctx, rc, doc)
}

// ResourceFromObjectInQueryString resolves a virtual resource addressed
// by its membership object carried in the query string, answering with a
// Content-Location header pointing at the canonical resource.
func (s *Service) ResourceFromObjectInQueryString(ctx context.Context, rc RequestContext, membershipPredicate string, memberIsObject bool) Result {
	unquoted, err := url.QueryUnescape(rc.QueryString)
	if err != nil {
		return badRequest(ErrorPair{Message: fmt.Sprintf("4006 malformed query string: %v", err)})
	}
	membershipResource := absoluteURL(rc, unquoted)
	requestURL := rc.RequestURL()
	doc := rdf.NewDocument(requestURL)
	res := s.virtualResource(ctx, rc, doc, membershipResource, membershipPredicate, memberIsObject)
	if res.Status != http.StatusOK {
		return res
	}
	var contentLocation rdf.Value
	if memberIsObject {
		contentLocation = doc.ValueOn(membershipResource, membershipPredicate)
	} else {
		contentLocation = rdf.URIRef(doc.SubjectOf(membershipPredicate, rdf.URIRef(membershipResource)))
	}
	doc.Add(requestURL, vocabulary.OWLSameAs, contentLocation)
	doc.GraphURL = contentLocation.String()
	return Result{
		Status:  http.StatusOK,
		Headers: []Header{{Name: "Content-Location", Value: contentLocation.String()}},
		Body:    doc,
	}
}

// AddOwnedContainer advertises a child container at <doc>/<segment>.
// When the request addresses that path, the document is reshaped into
// the container itself, inheriting the document's owner and resource
// group.
func (s *Service) AddOwnedContainer(rc RequestContext, doc *rdf.Document, containerPredicate, containerPathSegment, membershipPredicate string, foreignKeyIsReversed bool) {
	documentURL := doc.GraphURL
	containerURL := documentURL + "/" + containerPathSegment
	doc.Add(documentURL, containerPredicate, rdf.URIRef(containerURL))
	wantsContainer := len(rc.ExtraSegments) == 1 && rc.ExtraSegments[0] == containerPathSegment
	if !wantsContainer || !strings.HasPrefix(rc.RequestURL(), documentURL) {
		return
	}
	group := doc.Value(vocabulary.ACResourceGroup)
	owner := doc.Value(vocabulary.CEOwner)
	doc.GraphURL = containerURL
	s.AddContainer(rc, doc, containerURL+"%s", documentURL, membershipPredicate, foreignKeyIsReversed, group, owner, nil)
}

// ValidateRequired appends a field error when the predicate has no value
// on the document's primary subject. It reports whether the value was
// present.
func ValidateRequired(doc *rdf.Document, predicate string, fieldErrors *[]ErrorPair) bool {
	if doc.Value(predicate).IsZero() {
		*fieldErrors = append(*fieldErrors, ErrorPair{Field: predicate, Message: "4007 must provide value"})
		return false
	}
	return true
}

// NamespaceMappings returns the namespace-to-prefix table used for
// compact rendering.
func (s *Service) NamespaceMappings() map[string]string {
	return vocabulary.PrefixMappings
}
