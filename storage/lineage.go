package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	lineageCollection = "lineages_collection"
	lineageDocumentID = "lineage_document"
)

// lineageSource obtains lineage numbers. The default implementation does
// an atomic increment-or-create against the lineage document in the
// backing store; tests substitute a deterministic source.
type lineageSource interface {
	nextLineage(ctx context.Context) (int64, error)
}

type mongoLineageSource struct {
	db *mongo.Database
}

func (s *mongoLineageSource) nextLineage(ctx context.Context) (int64, error) {
	res := s.db.Collection(lineageCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": lineageDocumentID},
		bson.M{"$inc": bson.M{"lineage_value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After))
	var doc struct {
		Value int64 `bson:"lineage_value"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, fmt.Errorf("increment lineage document: %w", err)
	}
	return doc.Value, nil
}

// sequence is one identifier stream: a lineage obtained once per process
// plus a locally incremented counter. The network round trip for lineage
// acquisition happens under initMu, never under the counter lock.
type sequence struct {
	ready   atomic.Bool
	initMu  sync.Mutex
	mu      sync.Mutex
	lineage int64
	counter int64
}

func (s *sequence) next(ctx context.Context, source lineageSource) (string, error) {
	if !s.ready.Load() {
		if err := s.init(ctx, source); err != nil {
			return "", err
		}
	}
	s.mu.Lock()
	s.counter++
	id := fmt.Sprintf("%d.%d", s.lineage, s.counter)
	s.mu.Unlock()
	return id, nil
}

func (s *sequence) init(ctx context.Context, source lineageSource) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.ready.Load() {
		return nil
	}
	lineage, err := source.nextLineage(ctx)
	if err != nil {
		// Retryable: the next allocation attempt re-runs the remote
		// increment rather than handing out a placeholder identifier.
		return fmt.Errorf("acquire lineage: %w", err)
	}
	s.mu.Lock()
	s.lineage = lineage
	s.mu.Unlock()
	s.ready.Store(true)
	return nil
}

// IDAllocator produces deployment-unique identifiers of the form
// "lineage.counter". Document and history identifiers draw from separate
// lineages so the two streams never collide.
type IDAllocator struct {
	source   lineageSource
	logger   *slog.Logger
	document sequence
	history  sequence
}

// NewIDAllocator creates an allocator backed by the given database.
func NewIDAllocator(db *mongo.Database, logger *slog.Logger) *IDAllocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &IDAllocator{source: &mongoLineageSource{db: db}, logger: logger}
}

// NextDocumentID returns the next document identifier.
func (a *IDAllocator) NextDocumentID(ctx context.Context) (string, error) {
	id, err := a.document.next(ctx, a.source)
	if err != nil {
		a.logger.Error("document id allocation failed", "error", err)
		return "", err
	}
	return id, nil
}

// NextHistoryID returns the next history record identifier.
func (a *IDAllocator) NextHistoryID(ctx context.Context) (string, error) {
	id, err := a.history.next(ctx, a.source)
	if err != nil {
		a.logger.Error("history id allocation failed", "error", err)
		return "", err
	}
	return id, nil
}
