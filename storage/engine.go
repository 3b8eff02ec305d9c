// Package storage maps graph documents onto the backing document store:
// record translation, globally unique identifier allocation, and the
// create/fetch/query/delete/patch primitives including the versioning and
// optimistic-concurrency protocol.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/c360studio/ldgraph/rdf"
	"github.com/c360studio/ldgraph/vocabulary"
)

// QueryBatchLimit bounds the number of records returned by one query
// call. Pagination past the first batch is not defined.
const QueryBatchLimit = 100

// DisableConcurrencyCheck is the modification-count sentinel that turns
// off optimistic concurrency checking on patch (last-writer-wins).
const DisableConcurrencyCheck int64 = -1

// Scope identifies the collection a storage operation targets plus the
// public host used to rehydrate stored URLs.
type Scope struct {
	Tenant    string
	Namespace string
	Host      string
}

// CollectionName returns the store-native name for the scope's primary
// collection.
func (s Scope) CollectionName() string {
	return s.Tenant + "/" + s.Namespace
}

func (s Scope) historyNamespace() string {
	return s.Namespace + "_history"
}

// Engine performs document operations against the backing store.
type Engine struct {
	db     *mongo.Database
	ids    *IDAllocator
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a storage engine over the given database.
func NewEngine(db *mongo.Database, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		db:     db,
		ids:    NewIDAllocator(db, logger),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) collection(scope Scope) *mongo.Collection {
	return e.db.Collection(scope.CollectionName())
}

func (e *Engine) historyCollection(scope Scope) *mongo.Collection {
	return e.db.Collection(scope.Tenant + "/" + scope.historyNamespace())
}

// Create maps the document to a storage record and inserts it. A missing
// resourceID is allocated. A colliding identifier fails with ErrConflict;
// duplicate detection is delegated to the store's uniqueness constraint
// on _id.
func (e *Engine) Create(ctx context.Context, user string, scope Scope, doc *rdf.Document, resourceID string) (*rdf.Document, string, error) {
	if resourceID == "" {
		id, err := e.ids.NextDocumentID(ctx)
		if err != nil {
			return nil, "", err
		}
		resourceID = id
	}
	documentURL := DocumentURL(scope.Host, scope.Namespace, resourceID)
	subjects, err := subjectArray(doc, scope.Host, documentURL, true)
	if err != nil {
		return nil, "", err
	}
	timestamp := e.now()
	storedUser := urlToStorage(user, scope.Host, documentURL)
	record := bson.M{
		"_id":                resourceID,
		"@id":                urlToStorage("", scope.Host, documentURL),
		"@graph":             subjects,
		"_modificationCount": int64(0),
		"_created":           timestamp,
		"_lastModified":      timestamp,
		"_createdBy":         storedUser,
		"_lastModifiedBy":    storedUser,
	}
	if _, err := e.collection(scope).InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, documentURL, fmt.Errorf("%w: duplicate document id %s", ErrConflict, resourceID)
		}
		return nil, "", fmt.Errorf("insert document: %w", err)
	}
	return recordToDocument(record, scope.Host), documentURL, nil
}

// Get fetches one document by identifier.
func (e *Engine) Get(ctx context.Context, user string, scope Scope, documentID string) (*rdf.Document, error) {
	var record bson.M
	err := e.collection(scope).FindOne(ctx, bson.M{"_id": documentID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch document %s: %w", documentID, err)
	}
	return recordToDocument(record, scope.Host), nil
}

// Query translates the graph pattern into a store-native filter and
// returns at most QueryBatchLimit matching documents.
func (e *Engine) Query(ctx context.Context, user string, scope Scope, q rdf.Query) ([]*rdf.Document, error) {
	filter, sortSpec, err := queryToFilter(q, scope.Host, CollectionURL(scope.Host, scope.Namespace))
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetLimit(QueryBatchLimit)
	if sortSpec != nil {
		opts = opts.SetSort(sortSpec)
	}
	cursor, err := e.collection(scope).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer cursor.Close(ctx)

	var results []*rdf.Document
	for cursor.Next(ctx) {
		var record bson.M
		if err := cursor.Decode(&record); err != nil {
			return nil, fmt.Errorf("decode query result: %w", err)
		}
		results = append(results, recordToDocument(record, scope.Host))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate query results: %w", err)
	}
	return results, nil
}

// Delete removes one document. Deleting an absent document is not an
// error; the operation is idempotent from the caller's perspective.
func (e *Engine) Delete(ctx context.Context, user string, scope Scope, documentID string) error {
	if _, err := e.collection(scope).DeleteOne(ctx, bson.M{"_id": documentID}); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

// DropCollection removes the primary, history, and tracking collections
// for the scope's namespace. The three drops are not atomic as a unit.
func (e *Engine) DropCollection(ctx context.Context, user string, scope Scope) error {
	for _, namespace := range []string{scope.Namespace, scope.historyNamespace(), scope.Namespace + "_tracking"} {
		if err := e.db.Collection(scope.Tenant + "/" + namespace).Drop(ctx); err != nil {
			return fmt.Errorf("drop collection %s: %w", namespace, err)
		}
	}
	return nil
}

// createHistoryRecord snapshots the current record into the history
// collection and returns the snapshot's URL. The step is idempotent in
// practice: a duplicate snapshot is never referenced unless its patch
// sub-step also succeeds, so re-running it is harmless.
func (e *Engine) createHistoryRecord(ctx context.Context, scope Scope, documentID string) (string, error) {
	var record bson.M
	err := e.collection(scope).FindOne(ctx, bson.M{"_id": documentID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("fetch document for snapshot: %w", err)
	}
	historyID, err := e.ids.NextHistoryID(ctx)
	if err != nil {
		return "", err
	}
	historyURL := DocumentURL(scope.Host, scope.historyNamespace(), historyID)
	record["_versionOfId"] = record["_id"]
	record["_versionOf"] = record["@id"]
	record["_id"] = historyID
	record["@id"] = urlToStorage("", scope.Host, historyURL)
	if _, err := e.historyCollection(scope).InsertOne(ctx, record); err != nil {
		return "", fmt.Errorf("insert history record: %w", err)
	}
	return historyURL, nil
}

// PriorVersions resolves history-record references into full documents.
func (e *Engine) PriorVersions(ctx context.Context, user string, scope Scope, history []string) ([]*rdf.Document, error) {
	refs := make(bson.A, 0, len(history))
	for _, ref := range history {
		refs = append(refs, urlToStorage(ref, scope.Host, "/"))
	}
	cursor, err := e.historyCollection(scope).Find(ctx, bson.M{"@id": bson.M{"$in": refs}})
	if err != nil {
		return nil, fmt.Errorf("fetch prior versions: %w", err)
	}
	defer cursor.Close(ctx)

	var results []*rdf.Document
	for cursor.Next(ctx) {
		var record bson.M
		if err := cursor.Decode(&record); err != nil {
			return nil, fmt.Errorf("decode prior version: %w", err)
		}
		results = append(results, recordToDocument(record, scope.Host))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate prior versions: %w", err)
	}
	return results, nil
}

// Patch applies per-subject updates under optimistic concurrency. The
// protocol: snapshot the record into history, apply subject removals
// guarded by identifier only, then patch each remaining subject guarded
// by identifier plus (unless disabled) exact modification count, falling
// back to appending a new subject node when the in-place update matches
// nothing. Every successful sub-step increments the modification counter
// and appends the history reference. A failure partway leaves the record
// partially mutated; callers are told to retry via ErrConflict.
func (e *Engine) Patch(ctx context.Context, user string, scope Scope, documentID string, modCount int64, updates rdf.SubjectUpdates) error {
	historyURL, err := e.createHistoryRecord(ctx, scope, documentID)
	if err != nil {
		return err
	}
	checkModCount := modCount != DisableConcurrencyCheck
	documentURL := DocumentURL(scope.Host, scope.Namespace, documentID)
	collection := e.collection(scope)

	subjects := make([]string, 0, len(updates))
	deleteSubjects := make(bson.A, 0)
	for subject, node := range updates {
		if node == nil {
			deleteSubjects = append(deleteSubjects, urlToStorage(subject, scope.Host, documentURL))
			continue
		}
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)

	if len(deleteSubjects) > 0 {
		res, err := collection.UpdateOne(ctx,
			bson.M{"_id": documentID},
			bson.M{
				"$inc":  bson.M{"_modificationCount": 1},
				"$pull": bson.M{"@graph": bson.M{"@id": bson.M{"$in": deleteSubjects}}},
				"$push": bson.M{"_history": historyURL},
			})
		if err != nil {
			return fmt.Errorf("remove subjects: %w", err)
		}
		if res.MatchedCount != 1 {
			return fmt.Errorf("%w: unexpected update count %d removing subjects", ErrConflict, res.MatchedCount)
		}
		modCount++
	}

	for _, subject := range subjects {
		node := updates[subject]
		storedSubject := urlToStorage(subject, scope.Host, documentURL)
		sets := bson.M{"_lastModified": e.now(), "_lastModifiedBy": urlToStorage(user, scope.Host, documentURL)}
		unsets := bson.M{}
		newSubject := bson.M{"@id": storedSubject}
		for predicate, values := range node {
			if vocabulary.SystemProperties[predicate] {
				return fmt.Errorf("%w: %s", ErrSystemProperty, predicate)
			}
			key := predicateToStorage(predicate)
			if len(values) == 0 {
				unsets["@graph.$."+key] = 1
				continue
			}
			stored, err := valuesToStorage(values, scope.Host, documentURL)
			if err != nil {
				return err
			}
			sets["@graph.$."+key] = stored
			newSubject[key] = stored
		}

		// In-place update of the existing subject node.
		criteria := bson.M{
			"_id":    documentID,
			"@graph": bson.M{"$elemMatch": bson.M{"@id": storedSubject}},
		}
		if checkModCount {
			criteria["_modificationCount"] = modCount
		}
		update := bson.M{
			"$inc":  bson.M{"_modificationCount": 1},
			"$set":  sets,
			"$push": bson.M{"_history": historyURL},
		}
		if len(unsets) > 0 {
			update["$unset"] = unsets
		}
		res, err := collection.UpdateOne(ctx, criteria, update)
		if err != nil {
			return fmt.Errorf("patch subject %s: %w", subject, err)
		}
		if res.MatchedCount == 1 {
			modCount++
			continue
		}

		// The subject is not in the graph array yet; append it under the
		// same identifier and counter guard.
		criteria = bson.M{"_id": documentID}
		if checkModCount {
			criteria["_modificationCount"] = modCount
		}
		res, err = collection.UpdateOne(ctx, criteria, bson.M{
			"$inc":  bson.M{"_modificationCount": 1},
			"$set":  bson.M{"_lastModified": e.now(), "_lastModifiedBy": urlToStorage(user, scope.Host, documentURL)},
			"$push": bson.M{"_history": historyURL, "@graph": newSubject},
		})
		if err != nil {
			return fmt.Errorf("append subject %s: %w", subject, err)
		}
		if res.MatchedCount != 1 {
			return fmt.Errorf("%w: modification count moved while patching %s", ErrConflict, subject)
		}
		modCount++
	}
	return nil
}
