package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/ldgraph/access"
	"github.com/c360studio/ldgraph/rdf"
	"github.com/c360studio/ldgraph/storage"
	"github.com/c360studio/ldgraph/vocabulary"
)

const nonMemberProperties = "non-member-properties"

// completeResult assembles the outbound document: version-collection
// link, allVersions container, and live membership for containers. The
// final URL check rejects documents whose graph URL does not match the
// request.
func (s *Service) completeResult(ctx context.Context, rc RequestContext, doc *rdf.Document) Result {
	if s.ResultHook != nil {
		s.ResultHook(rc, doc)
	}
	documentURL := doc.GraphURL
	if len(rc.ExtraSegments) == 0 {
		doc.Add(documentURL, vocabulary.CEAllVersions, rdf.URIRef(documentURL+"/allVersions"))
	} else if len(rc.ExtraSegments) == 1 && rc.ExtraSegments[0] == "allVersions" && rc.QueryString == "" {
		return s.allVersionsContainer(ctx, rc, doc)
	}
	if doc.HasValue(vocabulary.RDFType, rdf.URIRef(vocabulary.BPContainer)) {
		if strings.HasSuffix(rc.QueryString, nonMemberProperties) {
			doc.DefaultSubject = doc.GraphURL
			doc.GraphURL = doc.GraphURL + "?" + nonMemberProperties
		} else {
			if res, ok := s.addContainerMembers(ctx, rc, doc); !ok {
				return res
			}
		}
	}
	if doc.GraphURL != rc.RequestURL() {
		return notFound(fmt.Sprintf("no document matching that url: %s , graph_url: %s", rc.RequestURL(), doc.GraphURL))
	}
	return ok(doc)
}

// getCollection renders the whole storage collection as a Basic Profile
// Container owned by the admin user.
func (s *Service) getCollection(ctx context.Context, rc RequestContext) Result {
	if !rc.Authenticated() {
		return unauthorized()
	}
	if rc.Namespace == "" {
		return badPath(rc)
	}
	containerURL := storage.CollectionURL(rc.Host, rc.Namespace)
	doc := rdf.NewDocument(containerURL)
	doc.SetOn(containerURL, vocabulary.RDFType, rdf.URIRef(vocabulary.BPContainer))
	doc.SetOn(containerURL, vocabulary.BPMembershipSubject, rdf.URIRef(containerURL))
	doc.SetOn(containerURL, vocabulary.BPMembershipPredicate, rdf.URIRef(vocabulary.RDFSMember))
	doc.SetOn(containerURL, vocabulary.CEOwner, rdf.URIRef(vocabulary.AdminUser))
	doc.SetOn(containerURL, vocabulary.ACResourceGroup, s.defaultResourceGroup(rc))

	if strings.HasSuffix(rc.QueryString, nonMemberProperties) {
		doc.DefaultSubject = doc.GraphURL
		doc.GraphURL = doc.GraphURL + "?" + nonMemberProperties
		return ok(doc)
	}
	results, err := s.store.Query(ctx, rc.User, rc.Scope(), rdf.Query{})
	if err != nil {
		return internalError(err)
	}
	s.addMemberDetail(ctx, rc, doc, results)
	members := make([]rdf.Value, 0, len(results))
	for _, member := range results {
		members = append(members, rdf.URIRef(member.GraphURL))
	}
	if len(members) > 0 {
		doc.SetOn(containerURL, vocabulary.RDFSMember, members...)
	}
	return ok(doc)
}

// membershipSpecOf reads the membership specification off a container
// document.
func membershipSpecOf(container *rdf.Document) rdf.MembershipSpec {
	spec := rdf.MembershipSpec{Object: container.Value(vocabulary.BPMembershipObject)}
	if v := container.Value(vocabulary.BPMembershipSubject); v.Kind == rdf.KindURI {
		spec.Subject = v.URI
	}
	if v := container.Value(vocabulary.BPMembershipPredicate); v.Kind == rdf.KindURI {
		spec.Predicate = v.URI
	}
	if v := container.Value(vocabulary.BPContainerSortPredicate); v.Kind == rdf.KindURI {
		spec.SortPredicate = v.URI
	}
	return spec
}

// addContainerMembers computes a container's live membership and merges
// it into the container document. With access checking enabled, the
// query is additionally constrained to records the caller owns or that
// belong to one of the caller's resource groups.
func (s *Service) addContainerMembers(ctx context.Context, rc RequestContext, container *rdf.Document) (Result, bool) {
	spec := membershipSpecOf(container)
	if spec.Predicate == "" {
		// Not a predicate-based container; nothing to compute.
		return ok(container), true
	}
	q, err := spec.Query()
	if err != nil {
		return badRequest(ErrorPair{Message: fmt.Sprintf("4003 %v", err)}), false
	}
	if s.checkAccess {
		// Without a decider the caller has no resource groups; the
		// constraint degrades to owner-only.
		var groups []string
		if s.access != nil {
			groups, err = s.access.ResourceGroups(ctx, rc.User)
			if err != nil {
				return internalError(err), false
			}
		}
		q.Patterns = append(q.Patterns, ownershipPattern(rc.User, groups))
	}
	results, err := s.store.Query(ctx, rc.User, rc.Scope(), q)
	if err != nil {
		return internalError(err), false
	}
	s.addMemberDetail(ctx, rc, container, results)
	return ok(container), true
}

// ownershipPattern constrains a query to records owned by user or held
// by one of the user's resource groups.
func ownershipPattern(user string, groups []string) rdf.SubjectPattern {
	owner := rdf.PredicateCondition{Predicate: vocabulary.CEOwner, Value: rdf.URIRef(user)}
	if len(groups) == 0 {
		return rdf.SubjectPattern{All: []rdf.PredicateCondition{owner}}
	}
	group := rdf.PredicateCondition{Predicate: vocabulary.ACResourceGroup}
	if len(groups) == 1 {
		group.Value = rdf.URIRef(groups[0])
	} else {
		group.In = make([]rdf.Value, len(groups))
		for i, g := range groups {
			group.In[i] = rdf.URIRef(g)
		}
	}
	return rdf.SubjectPattern{Any: []rdf.PredicateCondition{owner, group}}
}

// addMemberDetail merges membership triples plus all triples from the
// member documents into the container, and recursively completes every
// distinct member subject. A subject already present in the container
// must not be re-expanded: when a membership subject is the container
// itself the member documents carry triples about the container, and
// re-expanding them would recurse forever.
func (s *Service) addMemberDetail(ctx context.Context, rc RequestContext, container *rdf.Document, results []*rdf.Document) {
	for _, member := range results {
		for _, subject := range member.SortedSubjects() {
			newSubject := !container.Contains(subject)
			for predicate, values := range member.Subjects[subject] {
				container.Add(subject, predicate, values...)
			}
			if newSubject {
				view := &rdf.Document{GraphURL: subject, Subjects: container.Subjects}
				s.completeResult(ctx, rc, view)
			}
		}
	}
}

// virtualResource resolves a single-resource membership lookup. Zero
// matches is not found; more than one is reported as not found with an
// explanation, since the client cannot disambiguate by retrying.
func (s *Service) virtualResource(ctx context.Context, rc RequestContext, doc *rdf.Document, membershipResource, membershipPredicate string, memberIsObject bool) Result {
	var q rdf.Query
	if memberIsObject {
		q = rdf.Query{Patterns: []rdf.SubjectPattern{{
			Subject: membershipResource,
			All:     []rdf.PredicateCondition{{Predicate: membershipPredicate, Exists: true}},
		}}}
	} else {
		q = rdf.Query{Patterns: []rdf.SubjectPattern{{
			All: []rdf.PredicateCondition{{Predicate: membershipPredicate, Value: rdf.URIRef(membershipResource)}},
		}}}
	}
	results, err := s.store.Query(ctx, rc.User, rc.Scope(), q)
	if err != nil {
		return internalError(err)
	}
	switch len(results) {
	case 0:
		return notFound(fmt.Sprintf("no such virtual resource: %s", rc.RequestURL()))
	case 1:
		s.addMemberDetail(ctx, rc, doc, results)
		return ok(doc)
	default:
		return notFound("ambiguous virtual resource - should this be a container?")
	}
}

// defaultResourceGroup is the site root of the request URL.
func (s *Service) defaultResourceGroup(rc RequestContext) rdf.Value {
	return rdf.URIRef("http://" + rc.Host + "/")
}

// permissions derives the caller's rights on a document: owners hold
// everything; otherwise the document's resource group is consulted via
// the access-control collaborator.
func (s *Service) permissions(ctx context.Context, rc RequestContext, doc *rdf.Document) (access.Permissions, error) {
	owner := doc.Value(vocabulary.CEOwner)
	if owner.Kind == rdf.KindURI && owner.URI == rc.User {
		return access.All, nil
	}
	group := doc.Value(vocabulary.ACResourceGroup)
	if group.Kind != rdf.KindURI || group.URI == "" {
		return access.None, nil
	}
	if s.access == nil {
		return access.None, nil
	}
	perms, err := s.access.Permissions(ctx, group.URI, rc.User)
	if err != nil {
		return access.None, err
	}
	return perms, nil
}
