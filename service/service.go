// Package service orchestrates one logical operation per client verb:
// CRUD dispatch, container virtualization, permission checks via the
// access-control collaborator, versioning assembly, and change-event
// emission.
package service

import (
	"context"
	"log/slog"

	"github.com/c360studio/ldgraph/access"
	"github.com/c360studio/ldgraph/rdf"
	"github.com/c360studio/ldgraph/storage"
	"github.com/c360studio/ldgraph/tracking"
)

// Storage is the persistence seam the service drives. *storage.Engine
// implements it; tests substitute an in-memory store.
type Storage interface {
	Create(ctx context.Context, user string, scope storage.Scope, doc *rdf.Document, resourceID string) (*rdf.Document, string, error)
	Get(ctx context.Context, user string, scope storage.Scope, documentID string) (*rdf.Document, error)
	Query(ctx context.Context, user string, scope storage.Scope, q rdf.Query) ([]*rdf.Document, error)
	Delete(ctx context.Context, user string, scope storage.Scope, documentID string) error
	DropCollection(ctx context.Context, user string, scope storage.Scope) error
	Patch(ctx context.Context, user string, scope storage.Scope, documentID string, modCount int64, updates rdf.SubjectUpdates) error
	PriorVersions(ctx context.Context, user string, scope storage.Scope, history []string) ([]*rdf.Document, error)
}

// Options configures a Service.
type Options struct {
	// Access answers permission questions. Required when CheckAccess is
	// set.
	Access access.Decider
	// Tracker receives change entries; nil disables change tracking.
	Tracker tracking.Tracker
	// CheckAccess enables access-rights checking. Trusted internal
	// callers and tests may turn it off.
	CheckAccess bool
	Logger      *slog.Logger
}

// Service is the resource service.
type Service struct {
	store       Storage
	access      access.Decider
	tracker     tracking.Tracker
	checkAccess bool
	logger      *slog.Logger

	// ResultHook, when set, runs on every fetched document before result
	// completion. Domain extensions use it to attach owned containers
	// and other derived triples.
	ResultHook func(RequestContext, *rdf.Document)
}

// New creates a resource service over the given storage.
func New(store Storage, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		access:      opts.Access,
		tracker:     opts.Tracker,
		checkAccess: opts.CheckAccess,
		logger:      logger,
	}
}

func (s *Service) emitChange(ctx context.Context, rc RequestContext, kind tracking.Kind, resourceURL string) {
	if s.tracker == nil {
		return
	}
	scope := tracking.Scope{Tenant: rc.Tenant, Namespace: rc.Namespace}
	if err := s.tracker.AddChangeEntry(ctx, scope, resourceURL, kind); err != nil {
		// Change tracking is advisory; a failed entry must not fail a
		// mutation that already committed.
		s.logger.Warn("change entry not recorded", "resource", resourceURL, "kind", kind, "error", err)
	}
}
