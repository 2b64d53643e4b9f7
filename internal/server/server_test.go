package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onec-help/onechelp/internal/docindex"
	helperrors "github.com/onec-help/onechelp/internal/errors"
	"github.com/onec-help/onechelp/internal/hbk"
	"github.com/onec-help/onechelp/internal/mcp"
	"github.com/onec-help/onechelp/internal/reindex"
	"github.com/onec-help/onechelp/internal/search"
	"github.com/onec-help/onechelp/internal/store/storetest"
)

type stubRebuild struct {
	busy      bool
	triggered int
	snapshot  reindex.Snapshot
}

func (f *stubRebuild) Trigger(ctx context.Context) error {
	if f.busy {
		return helperrors.New(helperrors.ErrCodeRebuildBusy, "rebuild already in progress", nil)
	}
	f.triggered++
	return nil
}

func (f *stubRebuild) Status() reindex.Snapshot { return f.snapshot }

func newTestServer(t *testing.T) (*Server, *storetest.MemStore, *stubRebuild) {
	t.Helper()

	st := storetest.New()
	doc, err := docindex.Map(&hbk.Entry{Kind: hbk.KindGlobalFunction, Name: "Сообщить"})
	require.NoError(t, err)
	st.Seed(doc)

	engine, err := search.NewEngine(st, 0)
	require.NoError(t, err)

	rebuild := &stubRebuild{snapshot: reindex.Snapshot{State: reindex.StateIdle}}
	protocol := mcp.NewHandler(engine, rebuild)
	return NewServer("127.0.0.1", 8000, protocol, rebuild, st, nil), st, rebuild
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s, st, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["store"])

	// Health reports degradation in the payload, never an error status
	st.Unhealthy = true
	rec = doRequest(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "disconnected", body["store"])
}

func TestIndexStatus(t *testing.T) {
	s, _, rebuild := newTestServer(t)
	rebuild.snapshot = reindex.Snapshot{State: reindex.StateSucceeded, DocumentsIndexed: 17}

	rec := doRequest(t, s, http.MethodGet, "/index/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, string(reindex.StateSucceeded), body["status"])
	assert.Equal(t, float64(17), body["documents_count"])
}

func TestIndexRebuild(t *testing.T) {
	s, _, rebuild := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/index/rebuild", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["accepted"])
	assert.Equal(t, 1, rebuild.triggered)

	rebuild.busy = true
	rec = doRequest(t, s, http.MethodPost, "/index/rebuild", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["accepted"])
	assert.Equal(t, 1, rebuild.triggered)
}

func TestMCP_AlwaysHTTP200(t *testing.T) {
	s, _, _ := newTestServer(t)

	// A valid call
	rec := doRequest(t, s, http.MethodPost, "/mcp",
		`{"jsonrpc":"2.0","method":"tools/call","id":1,"params":{"name":"find_1c_help","arguments":{"query":"Сообщить"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.NotNil(t, body["result"])

	// A protocol violation still rides on HTTP 200
	rec = doRequest(t, s, http.MethodPost, "/mcp", `{"method":"tools/list","id":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, float64(-32600), body["error"].(map[string]any)["code"])

	// Unparseable JSON answers with a -32700 envelope
	rec = doRequest(t, s, http.MethodPost, "/mcp", `{broken`)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, float64(-32700), body["error"].(map[string]any)["code"])
}

func TestMCP_NotificationBody(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/mcp",
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestToolsCatalog(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)

	tools := decodeBody(t, rec)["tools"].([]any)
	assert.Len(t, tools, 5)
	first := tools[0].(map[string]any)
	assert.NotEmpty(t, first["name"])
	assert.NotEmpty(t, first["inputSchema"])
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/mcp", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
