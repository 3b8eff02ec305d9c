package service

import (
	"context"

	"github.com/c360studio/ldgraph/rdf"
	"github.com/c360studio/ldgraph/vocabulary"
)

// allVersionsContainer synthesizes the container of a document's prior
// history records plus its current version, each wrapped with a
// version-of relation back to the live document URL.
func (s *Service) allVersionsContainer(ctx context.Context, rc RequestContext, doc *rdf.Document) Result {
	history := make([]string, 0)
	for _, ref := range doc.Values(vocabulary.CEHistory) {
		if ref.Kind == rdf.KindURI {
			history = append(history, ref.URI)
		}
	}
	versions, err := s.store.PriorVersions(ctx, rc.User, rc.Scope(), history)
	if err != nil {
		return internalError(err)
	}

	requestURL := rc.RequestURL()
	result := rdf.NewDocument(requestURL)
	result.SetOn(requestURL, vocabulary.RDFSLabel, rdf.LiteralValue("all versions"))
	result.SetOn(requestURL, vocabulary.RDFType, rdf.URIRef(vocabulary.BPContainer))
	result.SetOn(requestURL, vocabulary.BPMembershipObject, rdf.URIRef(doc.GraphURL))
	result.SetOn(requestURL, vocabulary.BPMembershipPredicate, rdf.URIRef(vocabulary.CEVersionOf))

	// The live document is a member of its own version collection.
	result.Add(doc.GraphURL, vocabulary.CEVersionOf, rdf.URIRef(doc.GraphURL))
	result.Add(doc.GraphURL, vocabulary.CEGraph, rdf.GraphValue(doc))

	for _, version := range versions {
		versionURL := version.GraphURL
		result.Add(versionURL, vocabulary.CEVersionOf, rdf.URIRef(doc.GraphURL))
		// Inside the wrapped graph the version reads as the document it
		// snapshots, not as the history record.
		if target := version.Value(vocabulary.CEVersionOf); target.Kind == rdf.KindURI {
			version.Remove(versionURL)
			version.DefaultSubject = target.URI
		}
		result.Add(versionURL, vocabulary.CEGraph, rdf.GraphValue(version))
	}
	return ok(result)
}
