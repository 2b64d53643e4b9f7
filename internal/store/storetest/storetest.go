// Package storetest provides an in-memory Store for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	helperrors "github.com/onec-help/onechelp/internal/errors"
	"github.com/onec-help/onechelp/internal/store"
)

// MemStore is an in-memory store.Store with failure injection.
// Matching is deliberately simple: a Term clause is an exact field
// comparison, a Match clause a case-insensitive substring check.
type MemStore struct {
	mu sync.Mutex

	builds  map[string][]*store.IndexDocument
	active  string
	serving []*store.IndexDocument
	nextGen int

	// FailBulkTransient makes the next N BulkIndex calls fail with a
	// retryable store error.
	FailBulkTransient int
	// FailBulkFatal makes BulkIndex fail with a non-retryable error.
	FailBulkFatal bool
	// FailSwapTransient makes the next N SwapAlias calls fail with a
	// retryable store error.
	FailSwapTransient int
	// Unhealthy flips the health report.
	Unhealthy bool

	BulkCalls  int
	SwapCalls  int
	AbortCalls int
}

// New creates an empty MemStore.
func New() *MemStore {
	return &MemStore{builds: make(map[string][]*store.IndexDocument)}
}

// Seed installs documents as the active generation directly.
func (m *MemStore) Seed(docs ...*store.IndexDocument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = "seed"
	m.serving = append([]*store.IndexDocument(nil), docs...)
}

func (m *MemStore) BeginGeneration(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextGen++
	name := fmt.Sprintf("gen_%d", m.nextGen)
	m.builds[name] = nil
	return name, nil
}

func (m *MemStore) BulkIndex(ctx context.Context, generation string, docs []*store.IndexDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.BulkCalls++
	if m.FailBulkFatal {
		return helperrors.New(helperrors.ErrCodeStoreSchema, "schema mismatch", nil)
	}
	if m.FailBulkTransient > 0 {
		m.FailBulkTransient--
		return helperrors.New(helperrors.ErrCodeBulkWriteFailed, "bulk write failed", nil)
	}
	if _, ok := m.builds[generation]; !ok {
		return helperrors.InternalError("unknown generation "+generation, nil)
	}
	m.builds[generation] = append(m.builds[generation], docs...)
	return nil
}

func (m *MemStore) SwapAlias(ctx context.Context, generation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SwapCalls++
	if m.FailSwapTransient > 0 {
		m.FailSwapTransient--
		return helperrors.New(helperrors.ErrCodeStoreUnavailable, "store unavailable", nil)
	}
	docs, ok := m.builds[generation]
	if !ok {
		return helperrors.InternalError("unknown generation "+generation, nil)
	}
	m.active = generation
	m.serving = docs
	delete(m.builds, generation)
	return nil
}

func (m *MemStore) AbortGeneration(ctx context.Context, generation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AbortCalls++
	delete(m.builds, generation)
	return nil
}

func (m *MemStore) Search(ctx context.Context, q *store.Query) ([]*store.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Unhealthy {
		return nil, helperrors.StoreError("store unavailable", nil)
	}

	type scored struct {
		doc   *store.IndexDocument
		score float64
	}
	var matched []scored

	for _, doc := range m.serving {
		if !matchesAll(doc, q.Must) {
			continue
		}
		score, ok := shouldScore(doc, q.Should)
		if len(q.Should) > 0 && !ok {
			continue
		}
		if score == 0 {
			score = 1
		}
		matched = append(matched, scored{doc, score})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].score > matched[j].score
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	hits := make([]*store.Hit, 0, len(matched))
	for _, s := range matched {
		hits = append(hits, &store.Hit{
			ID:         s.doc.ID,
			Score:      s.score,
			Kind:       s.doc.Kind,
			MemberType: s.doc.MemberType,
			Name:       s.doc.Name,
			Owner:      s.doc.OwnerName,
			Payload:    s.doc.Payload,
		})
	}
	return hits, nil
}

func (m *MemStore) Count(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.serving)), nil
}

func (m *MemStore) ActiveGeneration() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *MemStore) Healthy(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Unhealthy
}

func (m *MemStore) Close() error { return nil }

func matchesAll(doc *store.IndexDocument, clauses []store.Clause) bool {
	for _, c := range clauses {
		if _, ok := matches(doc, c); !ok {
			return false
		}
	}
	return true
}

func shouldScore(doc *store.IndexDocument, clauses []store.Clause) (float64, bool) {
	var score float64
	any := false
	for _, c := range clauses {
		if s, ok := matches(doc, c); ok {
			score += s
			any = true
		}
	}
	return score, any
}

func matches(doc *store.IndexDocument, c store.Clause) (float64, bool) {
	boost := c.Boost
	if boost == 0 {
		boost = 1
	}

	if c.Field == "aliases" {
		for _, a := range doc.Aliases {
			if (c.Term != "" && a == c.Term) ||
				(c.Match != "" && strings.Contains(a, strings.ToLower(c.Match))) {
				return boost, true
			}
		}
		return 0, false
	}

	v := fieldValue(doc, c.Field)
	if c.Term != "" {
		if v == c.Term {
			return boost, true
		}
		return 0, false
	}
	if strings.Contains(strings.ToLower(v), strings.ToLower(c.Match)) {
		return boost, true
	}
	return 0, false
}

func fieldValue(doc *store.IndexDocument, field string) string {
	switch field {
	case "name":
		return doc.Name
	case "name_text":
		return doc.DisplayName
	case "owner":
		return doc.OwnerName
	case "kind":
		return doc.Kind
	case "member_type":
		return doc.MemberType
	case "body":
		return doc.Body
	case "description":
		return doc.Description
	case "example":
		return doc.Example
	case "signature":
		return doc.Signature
	default:
		return ""
	}
}
