package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	helperrors "github.com/onec-help/onechelp/internal/errors"
)

func testDoc(id, name, kind, owner, body string) *IndexDocument {
	return &IndexDocument{
		ID:          id,
		Name:        name,
		DisplayName: name,
		OwnerName:   owner,
		Kind:        kind,
		Body:        body,
		Payload:     `{"name":"` + name + `"}`,
	}
}

func TestBleveStore_BuildAndSwap(t *testing.T) {
	// Given an empty store
	s, err := NewBleveStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	assert.Equal(t, "", s.ActiveGeneration())

	// When a generation is built and swapped in
	gen, err := s.BeginGeneration(ctx)
	require.NoError(t, err)

	err = s.BulkIndex(ctx, gen, []*IndexDocument{
		testDoc("1", "найти", "global_function", "", "найти подстроку"),
		testDoc("2", "добавить", "method", "таблицазначений", "добавить строку"),
	})
	require.NoError(t, err)

	require.NoError(t, s.SwapAlias(ctx, gen))

	// Then the documents serve through the alias
	assert.Equal(t, gen, s.ActiveGeneration())

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	hits, err := s.Search(ctx, &Query{
		Must:  []Clause{{Field: "name", Term: "найти"}},
		Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "1", hits[0].ID)
	assert.Equal(t, "global_function", hits[0].Kind)
	assert.Equal(t, `{"name":"найти"}`, hits[0].Payload)
}

func TestBleveStore_SwapSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewBleveStore(dir, nil)
	require.NoError(t, err)

	gen, err := s.BeginGeneration(ctx)
	require.NoError(t, err)
	require.NoError(t, s.BulkIndex(ctx, gen, []*IndexDocument{
		testDoc("1", "сообщить", "global_function", "", "вывести сообщение"),
	}))
	require.NoError(t, s.SwapAlias(ctx, gen))
	require.NoError(t, s.Close())

	// When the store is reopened the manifest points at the same
	// generation.
	s2, err := NewBleveStore(dir, nil)
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, gen, s2.ActiveGeneration())
	n, err := s2.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestBleveStore_SwapDropsPreviousGeneration(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewBleveStore(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	first, err := s.BeginGeneration(ctx)
	require.NoError(t, err)
	require.NoError(t, s.BulkIndex(ctx, first, []*IndexDocument{
		testDoc("1", "старый", "global_function", "", ""),
	}))
	require.NoError(t, s.SwapAlias(ctx, first))

	second, err := s.BeginGeneration(ctx)
	require.NoError(t, err)
	require.NoError(t, s.BulkIndex(ctx, second, []*IndexDocument{
		testDoc("2", "новый", "global_function", "", ""),
		testDoc("3", "ещё", "global_function", "", ""),
	}))
	require.NoError(t, s.SwapAlias(ctx, second))

	// Then only the new generation remains on disk
	assert.NoDirExists(t, filepath.Join(dir, generationsDir, first))
	assert.DirExists(t, filepath.Join(dir, generationsDir, second))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestBleveStore_AbortRemovesBuild(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewBleveStore(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	gen, err := s.BeginGeneration(ctx)
	require.NoError(t, err)
	require.NoError(t, s.BulkIndex(ctx, gen, []*IndexDocument{
		testDoc("1", "брошенный", "global_function", "", ""),
	}))

	require.NoError(t, s.AbortGeneration(ctx, gen))

	assert.NoDirExists(t, filepath.Join(dir, generationsDir, gen))
	assert.Equal(t, "", s.ActiveGeneration())

	// Aborting twice is a no-op
	assert.NoError(t, s.AbortGeneration(ctx, gen))
}

func TestBleveStore_OrphanSweepOnOpen(t *testing.T) {
	dir := t.TempDir()

	// Given a generation directory left behind by a crashed build
	orphan := filepath.Join(dir, generationsDir, generationPrefix+"deadbeef0000")
	require.NoError(t, os.MkdirAll(orphan, 0o755))

	s, err := NewBleveStore(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.NoDirExists(t, orphan)
}

func TestBleveStore_SearchWithoutActiveGeneration(t *testing.T) {
	s, err := NewBleveStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()

	hits, err := s.Search(ctx, &Query{
		Should: []Clause{{Field: "body", Match: "что угодно"}},
		Limit:  5,
	})
	require.NoError(t, err)
	assert.Empty(t, hits)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	assert.True(t, s.Healthy(ctx))
}

func TestBleveStore_ExactNameOutranksBodyMatch(t *testing.T) {
	s, err := NewBleveStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	gen, err := s.BeginGeneration(ctx)
	require.NoError(t, err)
	require.NoError(t, s.BulkIndex(ctx, gen, []*IndexDocument{
		testDoc("exact", "найти", "global_function", "", "поиск подстроки"),
		testDoc("mention", "стрнайти", "global_function", "", "замена для найти"),
	}))
	require.NoError(t, s.SwapAlias(ctx, gen))

	hits, err := s.Search(ctx, &Query{
		Should: []Clause{
			{Field: "name", Term: "найти", Boost: 3.0},
			{Field: "body", Match: "найти", Boost: 1.0},
		},
		Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact", hits[0].ID)
}

func TestBleveStore_UnknownGenerationRejected(t *testing.T) {
	s, err := NewBleveStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()

	err = s.BulkIndex(ctx, "nope", []*IndexDocument{testDoc("1", "x", "method", "y", "")})
	assert.Error(t, err)

	err = s.SwapAlias(ctx, "nope")
	assert.Error(t, err)
	assert.Equal(t, "", s.ActiveGeneration())
}

func TestBleveStore_ClosedStoreErrors(t *testing.T) {
	s, err := NewBleveStore(t.TempDir(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Close())

	_, err = s.BeginGeneration(ctx)
	assert.True(t, helperrors.IsRetryable(err))

	_, err = s.Search(ctx, &Query{Limit: 1})
	assert.Error(t, err)

	assert.False(t, s.Healthy(ctx))

	// Close is idempotent
	assert.NoError(t, s.Close())
}
