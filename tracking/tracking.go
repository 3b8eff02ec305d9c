// Package tracking accumulates change entries for downstream
// synchronization feeds. Entries are keyed by (tenant, namespace) and
// published as JSON over NATS.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Kind classifies a change entry.
type Kind string

const (
	Creation     Kind = "Creation"
	Modification Kind = "Modification"
	Deletion     Kind = "Deletion"
)

// Scope identifies the feed a change entry belongs to.
type Scope struct {
	Tenant    string
	Namespace string
}

// Entry is one recorded change.
type Entry struct {
	ID          string    `json:"id"`
	ResourceURL string    `json:"resource_url"`
	Kind        Kind      `json:"kind"`
	Tenant      string    `json:"tenant"`
	Namespace   string    `json:"namespace"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Tracker records change entries for later feed publication.
// Implementations are narrow so the core's tests can substitute
// deterministic fakes.
type Tracker interface {
	AddChangeEntry(ctx context.Context, scope Scope, resourceURL string, kind Kind) error
}

// Publisher emits change entries over NATS, one subject per
// (tenant, namespace) feed.
type Publisher struct {
	conn          *nats.Conn
	subjectPrefix string
	logger        *slog.Logger
}

// NewPublisher creates a NATS-backed tracker. subjectPrefix defaults to
// "ldgraph.changes".
func NewPublisher(conn *nats.Conn, subjectPrefix string, logger *slog.Logger) *Publisher {
	if subjectPrefix == "" {
		subjectPrefix = "ldgraph.changes"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, subjectPrefix: subjectPrefix, logger: logger}
}

// AddChangeEntry implements Tracker.
func (p *Publisher) AddChangeEntry(_ context.Context, scope Scope, resourceURL string, kind Kind) error {
	entry := Entry{
		ID:          uuid.New().String(),
		ResourceURL: resourceURL,
		Kind:        kind,
		Tenant:      scope.Tenant,
		Namespace:   scope.Namespace,
		RecordedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal change entry: %w", err)
	}
	subject := fmt.Sprintf("%s.%s.%s", p.subjectPrefix, scope.Tenant, scope.Namespace)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish change entry: %w", err)
	}
	p.logger.Debug("published change entry", "subject", subject, "resource", resourceURL, "kind", kind)
	return nil
}

// Recorder is an in-memory Tracker for tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// AddChangeEntry implements Tracker.
func (r *Recorder) AddChangeEntry(_ context.Context, scope Scope, resourceURL string, kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{
		ID:          uuid.New().String(),
		ResourceURL: resourceURL,
		Kind:        kind,
		Tenant:      scope.Tenant,
		Namespace:   scope.Namespace,
		RecordedAt:  time.Now().UTC(),
	})
	return nil
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
