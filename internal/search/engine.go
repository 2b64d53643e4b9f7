// Package search implements the five help-lookup operations over the
// document store. All reads go through the store's serving alias, so
// results always come from the latest completed index.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/onec-help/onechelp/internal/docindex"
	helperrors "github.com/onec-help/onechelp/internal/errors"
	"github.com/onec-help/onechelp/internal/hbk"
	"github.com/onec-help/onechelp/internal/store"
)

const (
	// DefaultLimit applies when the caller leaves the limit unset.
	DefaultLimit = 10
	// MaxLimit caps the result count of a single query.
	MaxLimit = 100
	// DefaultCacheSize bounds the lookup cache.
	DefaultCacheSize = 256

	membersLimit = 1000
)

// Result is one search hit with the decoded documentation entry.
type Result struct {
	Score float64    `json:"score,omitempty"`
	Entry *hbk.Entry `json:"entry"`
}

// Engine executes help lookups against the store.
type Engine struct {
	store  store.Store
	cache  *lru.Cache[string, []*Result]
	logger *slog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates a search engine with a lookup cache of the given
// size (0 uses the default).
func NewEngine(st store.Store, cacheSize int, opts ...Option) (*Engine, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []*Result](cacheSize)
	if err != nil {
		return nil, helperrors.InternalError("cannot create search cache", err)
	}

	e := &Engine{
		store:  st,
		cache:  cache,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// FindHelp runs a free-text search over names and text bodies, with
// exact name matches ranked above free-text hits.
func (e *Engine) FindHelp(ctx context.Context, query string, limit int) ([]*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, helperrors.New(helperrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}

	key := e.cacheKey("find", query, fmt.Sprint(limit))
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	norm := docindex.Normalize(query)
	results, err := e.run(ctx, &store.Query{
		Should: []store.Clause{
			{Field: "name", Term: norm, Boost: 3.0},
			{Field: "aliases", Term: norm, Boost: 3.0},
			{Field: "name_text", Match: query, Boost: 2.0},
			{Field: "body", Match: query, Boost: 1.0},
		},
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}

	e.cache.Add(key, results)
	return results, nil
}

// GetSyntaxInfo looks up one entry exactly: a member of objectName
// when elementName is given, the object type itself otherwise. A zero
// match is reported as a not-found result.
func (e *Engine) GetSyntaxInfo(ctx context.Context, objectName, elementName string) (*Result, error) {
	objectName = strings.TrimSpace(objectName)
	if objectName == "" {
		return nil, helperrors.New(helperrors.ErrCodeInvalidInput, "object_name must not be empty", nil)
	}
	elementName = strings.TrimSpace(elementName)

	var q *store.Query
	if elementName == "" {
		norm := docindex.Normalize(objectName)
		q = &store.Query{
			Must: []store.Clause{{Field: "kind", Term: string(hbk.KindObjectType)}},
			Should: []store.Clause{
				{Field: "name", Term: norm},
				{Field: "aliases", Term: norm},
			},
			Limit: 1,
		}
	} else {
		norm := docindex.Normalize(elementName)
		q = &store.Query{
			Must: []store.Clause{{Field: "owner", Term: docindex.Normalize(objectName)}},
			Should: []store.Clause{
				{Field: "name", Term: norm},
				{Field: "aliases", Term: norm},
			},
			Limit: 1,
		}
	}

	results, err := e.run(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		if elementName == "" {
			return nil, helperrors.NotFoundError(fmt.Sprintf("no documentation for %q", objectName))
		}
		return nil, helperrors.NotFoundError(
			fmt.Sprintf("no documentation for %q in %q", elementName, objectName))
	}
	return results[0], nil
}

// ListMembers returns all members of an object type, optionally
// filtered by member type, ordered by kind then name.
func (e *Engine) ListMembers(ctx context.Context, objectName, memberType string) ([]*Result, error) {
	objectName = strings.TrimSpace(objectName)
	if objectName == "" {
		return nil, helperrors.New(helperrors.ErrCodeInvalidInput, "object_name must not be empty", nil)
	}
	memberType = strings.TrimSpace(memberType)
	if memberType != "" && !validMemberType(memberType) {
		return nil, helperrors.New(helperrors.ErrCodeInvalidInput,
			fmt.Sprintf("member_type must be one of method, property, event; got %q", memberType), nil)
	}

	must := []store.Clause{{Field: "owner", Term: docindex.Normalize(objectName)}}
	if memberType != "" {
		must = append(must, store.Clause{Field: "member_type", Term: memberType})
	}

	results, err := e.run(ctx, &store.Query{Must: must, Limit: membersLimit})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Entry, results[j].Entry
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return results, nil
}

// SearchByContext runs a free-text search biased toward descriptions
// and code examples.
func (e *Engine) SearchByContext(ctx context.Context, contextText string, limit int) ([]*Result, error) {
	contextText = strings.TrimSpace(contextText)
	if contextText == "" {
		return nil, helperrors.New(helperrors.ErrCodeQueryEmpty, "context must not be empty", nil)
	}
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}

	return e.run(ctx, &store.Query{
		Should: []store.Clause{
			{Field: "description", Match: contextText, Boost: 2.0},
			{Field: "example", Match: contextText, Boost: 2.0},
			{Field: "body", Match: contextText, Boost: 1.0},
		},
		Limit: limit,
	})
}

// GetQuickReference resolves a topic name against global functions and
// object types. On a cross-kind name collision both entries are
// returned, the object type first, so the caller can disambiguate.
func (e *Engine) GetQuickReference(ctx context.Context, topic string) ([]*Result, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, helperrors.New(helperrors.ErrCodeQueryEmpty, "topic must not be empty", nil)
	}

	key := e.cacheKey("quickref", topic)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	norm := docindex.Normalize(topic)
	var results []*Result
	for _, kind := range []hbk.Kind{hbk.KindObjectType, hbk.KindGlobalFunction} {
		hits, err := e.run(ctx, &store.Query{
			Must: []store.Clause{{Field: "kind", Term: string(kind)}},
			Should: []store.Clause{
				{Field: "name", Term: norm},
				{Field: "aliases", Term: norm},
			},
			Limit: 1,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, hits...)
	}
	if len(results) == 0 {
		return nil, helperrors.NotFoundError(fmt.Sprintf("no quick reference for %q", topic))
	}

	e.cache.Add(key, results)
	return results, nil
}

// run executes a store query and decodes the hit payloads.
func (e *Engine) run(ctx context.Context, q *store.Query) ([]*Result, error) {
	hits, err := e.store.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(hits))
	for _, h := range hits {
		var entry hbk.Entry
		if err := json.Unmarshal([]byte(h.Payload), &entry); err != nil {
			e.logger.Warn("dropping hit with undecodable payload",
				slog.String("id", h.ID),
				slog.String("error", err.Error()))
			continue
		}
		results = append(results, &Result{Score: h.Score, Entry: &entry})
	}
	return results, nil
}

// cacheKey scopes cached lookups to the serving generation, so a
// successful rebuild naturally invalidates prior results.
func (e *Engine) cacheKey(parts ...string) string {
	return e.store.ActiveGeneration() + "|" + strings.Join(parts, "|")
}

func clampLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, helperrors.New(helperrors.ErrCodeLimitInvalid, "limit must be positive", nil)
	case limit == 0:
		return DefaultLimit, nil
	case limit > MaxLimit:
		return MaxLimit, nil
	default:
		return limit, nil
	}
}

func validMemberType(mt string) bool {
	switch hbk.Kind(mt) {
	case hbk.KindMethod, hbk.KindProperty, hbk.KindEvent:
		return true
	}
	return false
}
