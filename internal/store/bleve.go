package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	helperrors "github.com/onec-help/onechelp/internal/errors"
)

const (
	// generationPrefix names index generations on disk.
	generationPrefix = "onec_docs_"

	// manifestFile records the active generation; it is replaced with
	// an atomic rename so a crash mid-swap never leaves a torn
	// manifest.
	manifestFile = "current"

	generationsDir = "generations"
)

// bleveDoc is the document shape handed to bleve. Keyword fields hold
// pre-normalized values; text fields go through the standard analyzer.
type bleveDoc struct {
	Name       string   `json:"name"`
	NameText   string   `json:"name_text"`
	Aliases    []string `json:"aliases"`
	Owner      string   `json:"owner"`
	Kind       string   `json:"kind"`
	MemberType string   `json:"member_type"`

	Body        string `json:"body"`
	Description string `json:"description"`
	Example     string `json:"example"`

	Payload string `json:"payload"`
}

// BleveStore implements Store on local bleve indexes. Each generation
// is an independent on-disk index; the serving alias is a
// bleve.IndexAlias whose Swap gives the atomic repoint the rebuild
// scheme requires.
type BleveStore struct {
	dataDir string
	logger  *slog.Logger

	mu         sync.Mutex
	alias      bleve.IndexAlias
	active     bleve.Index
	activeName string
	builds     map[string]bleve.Index
	closed     bool
}

// NewBleveStore opens the store at dataDir, attaching the generation
// recorded in the manifest if one exists. Leftover generations from a
// crashed build are removed: the manifest is the single source of
// truth for what serves.
func NewBleveStore(dataDir string, logger *slog.Logger) (*BleveStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(dataDir, generationsDir), 0o755); err != nil {
		return nil, helperrors.StoreError("cannot create store directory", err)
	}

	s := &BleveStore{
		dataDir: dataDir,
		logger:  logger,
		alias:   bleve.NewIndexAlias(),
		builds:  make(map[string]bleve.Index),
	}

	name, err := s.readManifest()
	if err != nil {
		return nil, err
	}
	if name != "" {
		idx, err := bleve.Open(s.generationPath(name))
		if err != nil {
			// A manifest pointing at an unopenable generation means the
			// data dir is damaged; refuse to serve stale garbage.
			return nil, helperrors.New(helperrors.ErrCodeStoreSchema,
				fmt.Sprintf("active generation %s cannot be opened", name), err)
		}
		s.active = idx
		s.activeName = name
		s.alias.Add(idx)
	}

	s.sweepOrphans()
	return s, nil
}

// BeginGeneration creates a new, empty, uniquely-named generation.
func (s *BleveStore) BeginGeneration(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", helperrors.StoreError("store is closed", nil)
	}

	name := generationPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	idx, err := bleve.New(s.generationPath(name), buildIndexMapping())
	if err != nil {
		return "", helperrors.StoreError("cannot create index generation", err)
	}

	s.builds[name] = idx
	s.logger.Debug("generation created", slog.String("generation", name))
	return name, nil
}

// BulkIndex writes a batch of documents into a building generation.
func (s *BleveStore) BulkIndex(ctx context.Context, generation string, docs []*IndexDocument) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return helperrors.StoreError("store is closed", nil)
	}
	idx, ok := s.builds[generation]
	if !ok {
		return helperrors.InternalError(fmt.Sprintf("unknown generation %s", generation), nil)
	}

	batch := idx.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, toBleveDoc(doc)); err != nil {
			return helperrors.New(helperrors.ErrCodeBulkWriteFailed,
				fmt.Sprintf("cannot stage document %s", doc.ID), err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return helperrors.New(helperrors.ErrCodeBulkWriteFailed, "bulk write failed", err)
	}
	return nil
}

// SwapAlias commits a built generation: the manifest is renamed into
// place first, then the alias is swapped, then the previous generation
// is dropped. A reader through the alias observes either the old or
// the new generation, never a mix.
func (s *BleveStore) SwapAlias(ctx context.Context, generation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return helperrors.StoreError("store is closed", nil)
	}
	idx, ok := s.builds[generation]
	if !ok {
		return helperrors.InternalError(fmt.Sprintf("unknown generation %s", generation), nil)
	}

	if err := s.writeManifest(generation); err != nil {
		return helperrors.New(helperrors.ErrCodeAliasSwapFailed, "cannot persist manifest", err)
	}

	prev, prevName := s.active, s.activeName
	if prev != nil {
		s.alias.Swap([]bleve.Index{idx}, []bleve.Index{prev})
	} else {
		s.alias.Add(idx)
	}
	s.active = idx
	s.activeName = generation
	delete(s.builds, generation)

	if prev != nil {
		if err := prev.Close(); err != nil {
			s.logger.Warn("closing previous generation failed",
				slog.String("generation", prevName),
				slog.String("error", err.Error()))
		}
		if err := os.RemoveAll(s.generationPath(prevName)); err != nil {
			s.logger.Warn("removing previous generation failed",
				slog.String("generation", prevName),
				slog.String("error", err.Error()))
		}
	}

	s.logger.Info("alias swapped",
		slog.String("generation", generation),
		slog.String("previous", prevName))
	return nil
}

// AbortGeneration discards a partially built generation.
func (s *BleveStore) AbortGeneration(ctx context.Context, generation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.builds[generation]
	if !ok {
		return nil
	}
	delete(s.builds, generation)
	_ = idx.Close()
	if err := os.RemoveAll(s.generationPath(generation)); err != nil {
		return helperrors.StoreError("cannot remove aborted generation", err)
	}
	s.logger.Info("generation aborted", slog.String("generation", generation))
	return nil
}

// Search executes a query through the serving alias. With no active
// generation the result is empty, not an error.
func (s *BleveStore) Search(ctx context.Context, q *Query) ([]*Hit, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, helperrors.StoreError("store is closed", nil)
	}
	if s.active == nil {
		s.mu.Unlock()
		return []*Hit{}, nil
	}
	alias := s.alias
	s.mu.Unlock()

	req := bleve.NewSearchRequest(translateQuery(q))
	req.Size = q.Limit
	if req.Size <= 0 {
		req.Size = 10
	}
	req.Fields = []string{"kind", "member_type", "name", "owner", "payload"}

	result, err := alias.SearchInContext(ctx, req)
	if err != nil {
		return nil, helperrors.StoreError("search failed", err)
	}

	hits := make([]*Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, &Hit{
			ID:         h.ID,
			Score:      h.Score,
			Kind:       fieldString(h.Fields, "kind"),
			MemberType: fieldString(h.Fields, "member_type"),
			Name:       fieldString(h.Fields, "name"),
			Owner:      fieldString(h.Fields, "owner"),
			Payload:    fieldString(h.Fields, "payload"),
		})
	}
	return hits, nil
}

// Count returns the number of documents behind the alias.
func (s *BleveStore) Count(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, helperrors.StoreError("store is closed", nil)
	}
	if s.active == nil {
		return 0, nil
	}
	n, err := s.active.DocCount()
	if err != nil {
		return 0, helperrors.StoreError("doc count failed", err)
	}
	return n, nil
}

// ActiveGeneration returns the generation behind the alias.
func (s *BleveStore) ActiveGeneration() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeName
}

// Healthy reports whether the store is open and its active generation
// readable.
func (s *BleveStore) Healthy(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.active == nil {
		return true
	}
	_, err := s.active.DocCount()
	return err == nil
}

// Close closes the active generation and any in-progress builds.
func (s *BleveStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.active != nil {
		if err := s.active.Close(); err != nil {
			firstErr = err
		}
	}
	for name, idx := range s.builds {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.builds, name)
	}
	return firstErr
}

func (s *BleveStore) generationPath(name string) string {
	return filepath.Join(s.dataDir, generationsDir, name)
}

func (s *BleveStore) manifestPath() string {
	return filepath.Join(s.dataDir, manifestFile)
}

func (s *BleveStore) readManifest() (string, error) {
	data, err := os.ReadFile(s.manifestPath())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", helperrors.StoreError("cannot read manifest", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *BleveStore) writeManifest(name string) error {
	tmp := s.manifestPath() + ".tmp"
	if err := os.WriteFile(tmp, []byte(name+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.manifestPath())
}

// sweepOrphans removes generation directories the manifest does not
// reference: leftovers of builds interrupted by a crash.
func (s *BleveStore) sweepOrphans() {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, generationsDir))
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == s.activeName {
			continue
		}
		if err := os.RemoveAll(s.generationPath(e.Name())); err != nil {
			s.logger.Warn("removing orphan generation failed",
				slog.String("generation", e.Name()),
				slog.String("error", err.Error()))
			continue
		}
		s.logger.Info("orphan generation removed", slog.String("generation", e.Name()))
	}
}

// buildIndexMapping defines the field mapping shared by all
// generations.
func buildIndexMapping() *mapping.IndexMappingImpl {
	keywordField := func() *mapping.FieldMapping {
		fm := bleve.NewKeywordFieldMapping()
		fm.Store = true
		return fm
	}
	textField := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Store = false
		return fm
	}
	storedOnly := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Index = false
		fm.Store = true
		fm.IncludeInAll = false
		return fm
	}

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("name", keywordField())
	doc.AddFieldMappingsAt("name_text", textField())
	doc.AddFieldMappingsAt("aliases", keywordField())
	doc.AddFieldMappingsAt("owner", keywordField())
	doc.AddFieldMappingsAt("kind", keywordField())
	doc.AddFieldMappingsAt("member_type", keywordField())
	doc.AddFieldMappingsAt("body", textField())
	doc.AddFieldMappingsAt("description", textField())
	doc.AddFieldMappingsAt("example", textField())
	doc.AddFieldMappingsAt("payload", storedOnly())

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = "standard"
	return im
}

// translateQuery lowers the store query shape onto bleve queries.
func translateQuery(q *Query) query.Query {
	clauseQuery := func(c Clause) query.Query {
		if c.Term != "" {
			tq := bleve.NewTermQuery(c.Term)
			tq.SetField(c.Field)
			if c.Boost > 0 {
				tq.SetBoost(c.Boost)
			}
			return tq
		}
		mq := bleve.NewMatchQuery(c.Match)
		mq.SetField(c.Field)
		if c.Boost > 0 {
			mq.SetBoost(c.Boost)
		}
		return mq
	}

	var parts []query.Query
	if len(q.Must) > 0 {
		must := make([]query.Query, 0, len(q.Must))
		for _, c := range q.Must {
			must = append(must, clauseQuery(c))
		}
		parts = append(parts, bleve.NewConjunctionQuery(must...))
	}
	if len(q.Should) > 0 {
		should := make([]query.Query, 0, len(q.Should))
		for _, c := range q.Should {
			should = append(should, clauseQuery(c))
		}
		parts = append(parts, bleve.NewDisjunctionQuery(should...))
	}

	switch len(parts) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return parts[0]
	default:
		return bleve.NewConjunctionQuery(parts...)
	}
}

func toBleveDoc(doc *IndexDocument) bleveDoc {
	return bleveDoc{
		Name:        doc.Name,
		NameText:    doc.DisplayName,
		Aliases:     doc.Aliases,
		Owner:       doc.OwnerName,
		Kind:        doc.Kind,
		MemberType:  doc.MemberType,
		Body:        doc.Body,
		Description: doc.Description,
		Example:     doc.Example,
		Payload:     doc.Payload,
	}
}

func fieldString(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
