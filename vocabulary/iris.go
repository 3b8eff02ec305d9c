// Package vocabulary holds the IRI constants for the namespaces the
// resource server speaks: the W3C core vocabularies, Dublin Core, the
// Basic Profile container terms, and the ce/ac/trs namespaces used for
// system metadata, access control, and change tracking.
package vocabulary

// Base namespace IRIs.
const (
	RDF  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFS = "http://www.w3.org/2000/01/rdf-schema#"
	XSD  = "http://www.w3.org/2001/XMLSchema#"
	OWL  = "http://www.w3.org/2002/07/owl#"
	DC   = "http://purl.org/dc/terms/"
	BP   = "http://open-services.net/ns/basicProfile#"
	TRS  = "http://open-services.net/ns/core/trs#"
	CE   = "http://ibm.com/ce/ns#"
	AC   = "http://ibm.com/ce/ac/ns#"
)

// Core terms.
const (
	// RDFType is the rdf:type predicate.
	RDFType = RDF + "type"

	// RDFSMember is the generic membership predicate used by built-in
	// collection containers.
	RDFSMember = RDFS + "member"

	// RDFSLabel is the rdfs:label predicate.
	RDFSLabel = RDFS + "label"

	// OWLSameAs links a virtual resource URL to its canonical location.
	OWLSameAs = OWL + "sameAs"
)

// Basic Profile container terms.
const (
	BPContainer              = BP + "Container"
	BPMembershipSubject      = BP + "membershipSubject"
	BPMembershipObject       = BP + "membershipObject"
	BPMembershipPredicate    = BP + "membershipPredicate"
	BPContainerSortPredicate = BP + "containerSortPredicates"
	BPNewMemberInstructions  = BP + "NewMemberInstructions"
	BPNewMemberContainer     = BP + "newMemberContainer"
	BPNewMemberPrototype     = BP + "newMemberPrototype"
	BPNewMemberPrototypes    = BP + "newMemberPrototypes"
	BPNewMemberLink          = BP + "newMemberInstructions"
)

// System-property predicates. These are stamped by the storage engine and
// may never be set by client-supplied triples.
const (
	DCCreator           = DC + "creator"
	DCCreated           = DC + "created"
	CEModificationCount = CE + "modificationCount"
	CELastModified      = CE + "lastModified"
	CELastModifiedBy    = CE + "lastModifiedBy"
	CEHistory           = CE + "history"
	CEID                = CE + "id"
)

// ce terms for ownership and versioning.
const (
	CEOwner       = CE + "owner"
	CEAllVersions = CE + "allVersions"
	CEVersionOf   = CE + "versionOf"
	CEGraph       = CE + "graph"
)

// Access-control terms.
const (
	ACResourceGroup = AC + "resource-group"
)

// Change-tracking event kinds.
const (
	TRSCreation     = TRS + "Creation"
	TRSModification = TRS + "Modification"
	TRSDeletion     = TRS + "Deletion"
)

// AdminUser owns the built-in collection containers.
const AdminUser = CE + "user/admin"

// SystemProperties enumerates the predicates that clients may not set on
// a document's primary subject.
var SystemProperties = map[string]bool{
	DCCreator:           true,
	DCCreated:           true,
	CEModificationCount: true,
	CELastModified:      true,
	CELastModifiedBy:    true,
	CEHistory:           true,
	CEID:                true,
}

// PrefixMappings maps namespace IRIs to the short prefixes used when
// rendering compact JSON.
var PrefixMappings = map[string]string{
	RDFS: "rdfs",
	RDF:  "rdf",
	BP:   "bp",
	XSD:  "xsd",
	DC:   "dc",
	CE:   "ce",
	OWL:  "owl",
	AC:   "ac",
}
