// Package integration exercises the full pipeline: fixture archive on
// disk, parse, rebuild into a bleve store, search through the alias.
package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	helperrors "github.com/onec-help/onechelp/internal/errors"
	"github.com/onec-help/onechelp/internal/hbk"
	"github.com/onec-help/onechelp/internal/hbk/hbktest"
	"github.com/onec-help/onechelp/internal/mcp"
	"github.com/onec-help/onechelp/internal/reindex"
	"github.com/onec-help/onechelp/internal/search"
	"github.com/onec-help/onechelp/internal/server"
	"github.com/onec-help/onechelp/internal/store"
)

func fixturePages() []hbktest.Page {
	return []hbktest.Page{
		hbktest.ObjectType("ТаблицаЗначений", "ValueTable", "Коллекция строк таблицы."),
		hbktest.Method("ТаблицаЗначений", "ValueTable", "Добавить", "Add", "Добавляет строку."),
		hbktest.Property("ТаблицаЗначений", "ValueTable", "Колонки", "Columns", "Коллекция колонок."),
		hbktest.GlobalFunction("СтрДлина", "StrLen", "Возвращает длину строки."),
	}
}

func writeFixture(t *testing.T, dir string, pages ...hbktest.Page) string {
	t.Helper()
	path := filepath.Join(dir, "shcntx_ru.hbk")
	require.NoError(t, os.WriteFile(path, hbktest.Archive(pages...), 0o644))
	return path
}

func newPipeline(t *testing.T, archivePath string) (*store.BleveStore, *reindex.Orchestrator, *search.Engine) {
	t.Helper()

	st, err := store.NewBleveStore(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	policy := helperrors.BackoffPolicy{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
	}
	orch := reindex.NewOrchestrator(st, reindex.NewArchiveSource(archivePath, hbk.NewParser()),
		reindex.WithBackoffPolicy(policy))

	engine, err := search.NewEngine(st, 0)
	require.NoError(t, err)
	return st, orch, engine
}

func TestRoundTrip_ParseIndexSearch(t *testing.T) {
	archive := writeFixture(t, t.TempDir(), fixturePages()...)
	st, orch, engine := newPipeline(t, archive)
	ctx := context.Background()

	require.NoError(t, orch.Run(ctx))

	snap := orch.Status()
	require.Equal(t, reindex.StateSucceeded, snap.State)
	assert.Equal(t, 4, snap.DocumentsIndexed)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)

	// Every parsed entry is findable by exact (owner, name) lookup
	res, err := engine.GetSyntaxInfo(ctx, "ТаблицаЗначений", "Добавить")
	require.NoError(t, err)
	assert.Equal(t, "Добавить", res.Entry.Name)
	assert.Equal(t, "ТаблицаЗначений", res.Entry.Owner)
	assert.Equal(t, hbk.KindMethod, res.Entry.Kind)
	assert.NotEmpty(t, res.Entry.Signature)
	assert.Equal(t, "8.3.24", res.Entry.Version)

	res, err = engine.GetSyntaxInfo(ctx, "ТаблицаЗначений", "")
	require.NoError(t, err)
	assert.Equal(t, hbk.KindObjectType, res.Entry.Kind)

	results, err := engine.FindHelp(ctx, "СтрДлина", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "СтрДлина", results[0].Entry.Name)
}

func TestRoundTrip_ArchiveReplacementShowsNewGeneration(t *testing.T) {
	dir := t.TempDir()
	archive := writeFixture(t, dir, fixturePages()...)
	_, orch, engine := newPipeline(t, archive)
	ctx := context.Background()

	require.NoError(t, orch.Run(ctx))
	firstGen := orch.Status().Generation

	// The new entry is not in the serving index yet
	_, err := engine.GetQuickReference(ctx, "СтрЗаменить")
	require.Error(t, err)

	// Replace the archive with a newer revision and rebuild
	pages := append(fixturePages(),
		hbktest.GlobalFunction("СтрЗаменить", "StrReplace", "Заменяет подстроку."))
	require.NoError(t, os.WriteFile(archive, hbktest.Archive(pages...), 0o644))

	require.NoError(t, orch.Trigger(ctx))
	orch.Wait()

	snap := orch.Status()
	require.Equal(t, reindex.StateSucceeded, snap.State)
	assert.NotEqual(t, firstGen, snap.Generation)
	assert.Equal(t, 5, snap.DocumentsIndexed)

	results, err := engine.GetQuickReference(ctx, "СтрЗаменить")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, hbk.KindGlobalFunction, results[0].Entry.Kind)
}

func TestRoundTrip_RebuildIsIdempotent(t *testing.T) {
	archive := writeFixture(t, t.TempDir(), fixturePages()...)
	st, orch, _ := newPipeline(t, archive)
	ctx := context.Background()

	require.NoError(t, orch.Run(ctx))
	first, err := st.Count(ctx)
	require.NoError(t, err)

	require.NoError(t, orch.Run(ctx))
	second, err := st.Count(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRoundTrip_HTTPRebuildOutlivesRequest(t *testing.T) {
	archive := writeFixture(t, t.TempDir(), fixturePages()...)
	st, orch, engine := newPipeline(t, archive)

	protocol := mcp.NewHandler(engine, orch)
	srv := server.NewServer("127.0.0.1", 0, protocol, orch, st, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// The request context dies as soon as the 202 is written; the
	// rebuild it accepted must still run to completion.
	resp, err := http.Post(ts.URL+"/index/rebuild", "application/json", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	orch.Wait()

	snap := orch.Status()
	require.Equal(t, reindex.StateSucceeded, snap.State)
	assert.Empty(t, snap.Error)
	assert.Equal(t, 4, snap.DocumentsIndexed)

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)
}

func TestRoundTrip_GarbageArchiveFailsFast(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "broken.hbk")
	require.NoError(t, os.WriteFile(archive, []byte("this is not an archive at all"), 0o644))

	st, orch, _ := newPipeline(t, archive)
	ctx := context.Background()

	err := orch.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, helperrors.ErrCodeUnsupportedFormat, helperrors.GetCode(err))
	assert.Equal(t, reindex.StateFailed, orch.Status().State)
	assert.Equal(t, "", st.ActiveGeneration())
}
